package link

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/stomasense/stomalink/pkg/log"
)

const readChunk = 256

// Link is a serial connection with a background message reassembly loop.
// All methods are safe for concurrent use.
type Link struct {
	cfg    Config
	open   Opener
	lister Lister
	logger log.Logger

	mu      sync.Mutex
	port    Port
	stop    chan struct{}
	done    chan struct{}
	handler MessageHandler

	// writeMu serializes writers and keeps Close from racing a write.
	writeMu sync.Mutex
	// pending is closed when a timed-out driver write finally returns.
	// Guarded by writeMu.
	pending chan struct{}
}

// Option configures optional behavior of a Link.
type Option func(*Link)

// WithOpener replaces the driver opener selected by Config.Driver.
func WithOpener(o Opener) Option {
	return func(l *Link) {
		l.open = o
	}
}

// WithLister replaces the port enumeration used by Open.
func WithLister(lister Lister) Option {
	return func(l *Link) {
		l.lister = lister
	}
}

// New creates a closed Link. The config is validated and the driver resolved.
func New(cfg Config, logger log.Logger, opts ...Option) (*Link, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l := &Link{
		cfg:    cfg,
		lister: ListPorts,
		logger: log.OrNoop(logger).With(log.String("component", "link"), log.String("port", cfg.Port)),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.open == nil {
		o, err := OpenerFor(cfg.Driver)
		if err != nil {
			return nil, err
		}
		l.open = o
	}
	l.handler = l.logMessage
	return l, nil
}

// Config returns the link configuration.
func (l *Link) Config() Config {
	return l.cfg
}

// IsOpen reports whether the port is open.
func (l *Link) IsOpen() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.port != nil
}

// IsReceiving reports whether the receive loop is running.
func (l *Link) IsReceiving() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done == nil {
		return false
	}
	select {
	case <-l.done:
		return false
	default:
		return true
	}
}

// Open opens the configured port if it is not already open.
func (l *Link) Open() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.openLocked()
}

func (l *Link) openLocked() error {
	if l.port != nil {
		return nil
	}

	if !l.cfg.SkipPortCheck {
		if err := CheckAttached(l.cfg.Port, l.lister); err != nil {
			l.logger.Error("couldn't open serial port", log.Err(err))
			return err
		}
	}

	p, err := l.open(l.cfg)
	if err != nil {
		l.logger.Error("couldn't open serial port", log.Err(err))
		return fmt.Errorf("open %s: %w", l.cfg.Port, err)
	}
	l.port = p
	l.logger.Info("opened port",
		log.Int("baud", l.cfg.BaudRate),
		log.String("driver", l.cfg.Driver),
	)
	return nil
}

// Close stops the receive loop, then closes the port. Closing a closed
// link is a no-op.
func (l *Link) Close() error {
	l.StopReceiveLoop()

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	l.mu.Lock()
	p := l.port
	l.port = nil
	l.mu.Unlock()

	if p == nil {
		return nil
	}
	err := p.Close()
	if l.pending != nil {
		// closing the handle unblocks the abandoned write
		<-l.pending
		l.pending = nil
	}
	if err != nil {
		l.logger.Warn("close port", log.Err(err))
		return err
	}
	l.logger.Info("closed port")
	return nil
}

// SetMessageHandler installs the function called for every reassembled
// message. A nil handler restores the default, which logs the message.
// The handler runs on the receive goroutine.
func (l *Link) SetMessageHandler(h MessageHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if h == nil {
		h = l.logMessage
	}
	l.handler = h
}

func (l *Link) logMessage(msg string) {
	l.logger.Info("received message", log.String("msg", msg))
}

// Send writes p to the port. It fails with ErrNotOpen on a closed link,
// ErrWriteTimeout when WriteTimeout elapses and io.ErrShortWrite when only
// part of p was written.
func (l *Link) Send(p []byte) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	l.mu.Lock()
	port := l.port
	l.mu.Unlock()
	if port == nil {
		return ErrNotOpen
	}
	if l.pending != nil {
		select {
		case <-l.pending:
			l.pending = nil
		default:
			l.logger.Warn("previous write still in progress", log.Int("len", len(p)))
			return fmt.Errorf("%w: previous write still in progress", ErrWriteTimeout)
		}
	}

	n, err := l.write(port, p)
	if err != nil {
		l.logger.Warn("write failed", log.Err(err), log.Int("written", n), log.Int("len", len(p)))
		return err
	}
	if n != len(p) {
		l.logger.Warn("short write", log.Int("written", n), log.Int("len", len(p)))
		return io.ErrShortWrite
	}
	l.logger.Debug("sent", log.Int("bytes", n))
	return nil
}

func (l *Link) write(port Port, p []byte) (int, error) {
	if l.cfg.WriteTimeout <= 0 {
		return port.Write(p)
	}

	type result struct {
		n   int
		err error
	}
	ch := make(chan result, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		n, err := port.Write(p)
		ch <- result{n, err}
	}()

	t := time.NewTimer(l.cfg.WriteTimeout)
	defer t.Stop()
	select {
	case r := <-ch:
		return r.n, r.err
	case <-t.C:
		l.pending = done
		return 0, ErrWriteTimeout
	}
}

// StartReceiveLoop starts the background reassembly goroutine. A closed
// link is opened first when AutoOpen is set, otherwise ErrNotOpen is
// returned. Starting a running loop is a no-op.
func (l *Link) StartReceiveLoop() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.done != nil {
		select {
		case <-l.done:
		default:
			return nil
		}
	}

	if l.port == nil {
		if !l.cfg.AutoOpen {
			l.logger.Error("couldn't start receive loop: port not open and auto-open disabled")
			return ErrNotOpen
		}
		if err := l.openLocked(); err != nil {
			l.logger.Error("couldn't start receive loop: port couldn't open")
			return err
		}
	}

	l.stop = make(chan struct{})
	l.done = make(chan struct{})
	go l.receiveLoop(l.port, l.stop, l.done)
	l.logger.Debug("receive loop started")
	return nil
}

// StopReceiveLoop signals the receive loop and waits until it has exited.
func (l *Link) StopReceiveLoop() {
	l.mu.Lock()
	stop, done := l.stop, l.done
	l.stop, l.done = nil, nil
	l.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
	l.logger.Debug("receive loop stopped")
}

func (l *Link) currentHandler() MessageHandler {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.handler
}

func (l *Link) receiveLoop(port Port, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	r := NewReassembler(l.cfg.Terminator, l.cfg.Ignore, l.cfg.MaxMessageLen, func(msg string, truncated int) {
		if truncated > 0 {
			l.logger.Debug("message truncated", log.Int("dropped", truncated), log.Int("max", l.cfg.MaxMessageLen))
		}
		l.currentHandler()(msg)
	})
	buf := make([]byte, readChunk)
	bo := newBackoff(DefaultBackoffInitial, DefaultBackoffMax)

	for {
		select {
		case <-stop:
			return
		default:
		}

		n, err := port.Read(buf)
		if n > 0 {
			_, _ = r.Write(buf[:n])
			bo.Reset()
			continue
		}
		if err != nil && !errors.Is(err, io.EOF) {
			l.logger.Error("read error", log.Err(err), log.Duration("backoff", bo.Current()))
			if !bo.Wait(stop) {
				return
			}
			continue
		}

		idle := time.NewTimer(l.cfg.IdleInterval)
		select {
		case <-stop:
			idle.Stop()
			return
		case <-idle.C:
		}
	}
}
