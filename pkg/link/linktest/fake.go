// Package linktest provides an in-memory serial port for tests.
package linktest

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/stomasense/stomalink/pkg/link"
)

// ErrClosed is returned by reads and writes on a closed FakePort.
var ErrClosed = errors.New("linktest: port closed")

// Responder is called with every complete line written to a FakePort
// (terminator stripped). Its return values are queued as device output.
type Responder func(line string) []string

// FakePort is an in-memory link.Port. Device output is injected with Feed
// or produced by a Responder; host writes are captured.
type FakePort struct {
	mu          sync.Mutex
	in          bytes.Buffer
	out         bytes.Buffer
	partial     bytes.Buffer
	readable    chan struct{}
	closed      bool
	readErr     error
	writeDelay  time.Duration
	shortWrite  bool
	readTimeout time.Duration
	respond     Responder
	writes      []string
	closes      int
	inWrite     int
	maxInWrite  int
}

// NewFakePort creates a FakePort whose reads block at most readTimeout.
func NewFakePort(readTimeout time.Duration) *FakePort {
	if readTimeout <= 0 {
		readTimeout = 10 * time.Millisecond
	}
	return &FakePort{
		readable:    make(chan struct{}, 1),
		readTimeout: readTimeout,
	}
}

// Opener returns a link.Opener that always hands out p.
func (p *FakePort) Opener() link.Opener {
	return func(link.Config) (link.Port, error) {
		p.mu.Lock()
		p.closed = false
		p.mu.Unlock()
		return p, nil
	}
}

// Lister returns a link.Lister reporting the given ports.
func Lister(ports ...string) link.Lister {
	return func() ([]string, error) {
		return ports, nil
	}
}

// SetResponder installs the simulated device.
func (p *FakePort) SetResponder(r Responder) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.respond = r
}

// SetReadError makes subsequent reads fail with err until cleared with nil.
func (p *FakePort) SetReadError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readErr = err
}

// SetWriteDelay delays every write by d.
func (p *FakePort) SetWriteDelay(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeDelay = d
}

// SetShortWrite makes writes report one byte less than requested.
func (p *FakePort) SetShortWrite(short bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shortWrite = short
}

// Feed queues raw device output.
func (p *FakePort) Feed(s string) {
	p.mu.Lock()
	p.in.WriteString(s)
	p.mu.Unlock()
	p.signal()
}

// FeedLines queues each line followed by "\r\n", as the firmware prints.
func (p *FakePort) FeedLines(lines ...string) {
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteString("\r\n")
	}
	p.Feed(b.String())
}

func (p *FakePort) signal() {
	select {
	case p.readable <- struct{}{}:
	default:
	}
}

// Read implements io.Reader with a simulated read timeout.
func (p *FakePort) Read(b []byte) (int, error) {
	deadline := time.NewTimer(p.readTimeout)
	defer deadline.Stop()

	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return 0, ErrClosed
		}
		if p.readErr != nil {
			err := p.readErr
			p.mu.Unlock()
			return 0, err
		}
		if p.in.Len() > 0 {
			n, _ := p.in.Read(b)
			p.mu.Unlock()
			return n, nil
		}
		p.mu.Unlock()

		select {
		case <-p.readable:
		case <-deadline.C:
			return 0, nil
		}
	}
}

// Write implements io.Writer, capturing data and driving the Responder.
func (p *FakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	delay := p.writeDelay
	p.inWrite++
	p.maxInWrite = max(p.maxInWrite, p.inWrite)
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.inWrite--
		p.mu.Unlock()
	}()

	if delay > 0 {
		time.Sleep(delay)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, ErrClosed
	}
	n := len(b)
	if p.shortWrite && n > 0 {
		n--
	}
	p.out.Write(b[:n])
	p.partial.Write(b[:n])

	var replies []string
	for {
		line, err := p.partial.ReadString('\n')
		if err == io.EOF {
			// put back the incomplete tail
			rest := line
			p.partial.Reset()
			p.partial.WriteString(rest)
			break
		}
		line = strings.TrimSuffix(line, "\n")
		p.writes = append(p.writes, line)
		if p.respond != nil {
			replies = append(replies, p.respond(line)...)
		}
	}
	p.mu.Unlock()

	if len(replies) > 0 {
		p.FeedLines(replies...)
	}
	return n, nil
}

// Close implements io.Closer.
func (p *FakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.closes++
	return nil
}

// Written returns every byte written so far.
func (p *FakePort) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.out.String()
}

// Lines returns the complete lines written so far, terminators stripped.
func (p *FakePort) Lines() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.writes...)
}

// Writes reports how many writes are in progress and the most that ever
// overlapped.
func (p *FakePort) Writes() (inFlight, maxOverlap int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inWrite, p.maxInWrite
}

// Closed reports whether the port is closed and how often Close was called.
func (p *FakePort) Closed() (bool, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed, p.closes
}
