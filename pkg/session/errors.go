package session

import "errors"

var (
	// ErrNoResponse is returned when no matching record arrived in time.
	ErrNoResponse = errors.New("session: no response")

	// ErrNotObject is returned when a message is valid JSON but not an object.
	ErrNotObject = errors.New("session: message is not a JSON object")

	// ErrInvalidTransition is returned for a Call state change the machine forbids.
	ErrInvalidTransition = errors.New("session: invalid call transition")
)
