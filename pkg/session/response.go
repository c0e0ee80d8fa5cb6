package session

import (
	"fmt"
	"maps"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/segmentio/encoding/json"
)

// Well-known response keys printed by the firmware.
const (
	KeyCmd        = "cmd"
	KeyProcessing = "processing"
	KeySuccess    = "success"
	KeyError      = "error"
	KeyMsg        = "msg"
)

// Response is one JSON object received from the device.
type Response struct {
	// ID is a receipt identifier assigned on arrival.
	ID ulid.ULID

	// ReceivedAt is when the message was decoded.
	ReceivedAt time.Time

	// Fields holds the decoded object.
	Fields map[string]any
}

func decodeResponse(raw string, now time.Time) (Response, error) {
	var fields map[string]any
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	if fields == nil {
		return Response{}, ErrNotObject
	}
	return Response{
		ID:         ulid.Make(),
		ReceivedAt: now,
		Fields:     fields,
	}, nil
}

// Cmd returns the "cmd" field, or "" when absent or not a string.
func (r Response) Cmd() string {
	s, _ := r.Fields[KeyCmd].(string)
	return s
}

// Has reports whether key is present.
func (r Response) Has(key string) bool {
	_, ok := r.Fields[key]
	return ok
}

// Get returns the raw value stored under key.
func (r Response) Get(key string) (any, bool) {
	v, ok := r.Fields[key]
	return v, ok
}

// Bool returns the boolean stored under key, false otherwise.
func (r Response) Bool(key string) bool {
	b, _ := r.Fields[key].(bool)
	return b
}

// Float returns the number stored under key.
func (r Response) Float(key string) (float64, bool) {
	f, ok := r.Fields[key].(float64)
	return f, ok
}

// Str returns the string stored under key.
func (r Response) Str(key string) (string, bool) {
	s, ok := r.Fields[key].(string)
	return s, ok
}

// IsProcessing reports whether this record only acknowledges a command
// whose result follows later. Presence of the key is what counts.
func (r Response) IsProcessing() bool {
	return r.Has(KeyProcessing)
}

// IsError reports whether the device flagged this record as an error.
func (r Response) IsError() bool {
	return r.Bool(KeyError)
}

// Message returns the device-provided "msg" field.
func (r Response) Message() string {
	s, _ := r.Str(KeyMsg)
	return s
}

// IsZero reports whether r is the zero Response.
func (r Response) IsZero() bool {
	return r.Fields == nil
}

// Clone returns a copy whose top-level fields can be mutated independently.
func (r Response) Clone() Response {
	r.Fields = maps.Clone(r.Fields)
	return r
}

// MarshalJSON encodes the decoded object.
func (r Response) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Fields)
}

// String renders the record as compact JSON.
func (r Response) String() string {
	b, err := json.Marshal(r.Fields)
	if err != nil {
		return fmt.Sprintf("%v", r.Fields)
	}
	return string(b)
}
