package link

import "strings"

// MessageHandler receives one reassembled message, without terminator.
type MessageHandler func(msg string)

// Reassembler turns a byte stream into terminator-delimited messages.
// It is not safe for concurrent use; the receive loop owns it.
type Reassembler struct {
	terminator byte
	ignore     string
	max        int
	buf        []byte
	truncated  int
	emit       func(msg string, truncated int)
}

// NewReassembler creates a Reassembler calling emit for every complete
// message. truncated counts bytes dropped from the front of that message.
func NewReassembler(terminator byte, ignore string, max int, emit func(msg string, truncated int)) *Reassembler {
	if max <= 0 {
		max = DefaultMaxMessageLen
	}
	return &Reassembler{
		terminator: terminator,
		ignore:     ignore,
		max:        max,
		buf:        make([]byte, 0, max),
		emit:       emit,
	}
}

// WriteByte feeds a single byte.
func (r *Reassembler) WriteByte(c byte) error {
	switch {
	case strings.IndexByte(r.ignore, c) >= 0:
	case c == r.terminator:
		msg, dropped := string(r.buf), r.truncated
		r.buf = r.buf[:0]
		r.truncated = 0
		if r.emit != nil {
			r.emit(msg, dropped)
		}
	default:
		r.buf = append(r.buf, c)
		if len(r.buf) > r.max {
			// sliding window over the most recent max bytes
			copy(r.buf, r.buf[1:])
			r.buf = r.buf[:r.max]
			r.truncated++
		}
	}
	return nil
}

// Write feeds p byte by byte. It never fails.
func (r *Reassembler) Write(p []byte) (int, error) {
	for _, c := range p {
		_ = r.WriteByte(c)
	}
	return len(p), nil
}

// Pending returns the number of buffered bytes of the in-progress message.
func (r *Reassembler) Pending() int {
	return len(r.buf)
}

// Reset discards the in-progress message.
func (r *Reassembler) Reset() {
	r.buf = r.buf[:0]
	r.truncated = 0
}
