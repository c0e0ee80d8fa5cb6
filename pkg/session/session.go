package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/stomasense/stomalink/pkg/link"
	"github.com/stomasense/stomalink/pkg/log"
)

// Transport is the part of a link a Session needs.
type Transport interface {
	Send(p []byte) error
	SetMessageHandler(h link.MessageHandler)
}

// ProcessCallback observes every decoded record after it was queued.
// It runs on the link's receive goroutine.
type ProcessCallback func(r Response)

// Config controls command encoding and queueing.
type Config struct {
	// Separator joins the command name and its arguments.
	Separator string

	// Terminator ends every command. It must match the device's terminator.
	Terminator string

	// QueueCapacity bounds undelivered records.
	QueueCapacity int
}

// DefaultConfig returns the firmware's command conventions.
func DefaultConfig() Config {
	return Config{
		Separator:     " ",
		Terminator:    "\n",
		QueueCapacity: DefaultQueueCapacity,
	}
}

// Session encodes commands and correlates device records with them.
type Session struct {
	transport Transport
	cfg       Config
	queue     *Queue
	logger    log.Logger
	now       func() time.Time

	mu      sync.RWMutex
	process ProcessCallback
}

// New creates a Session and installs its decoder as t's message handler.
// Zero-valued config fields fall back to DefaultConfig.
func New(t Transport, cfg Config, logger log.Logger) *Session {
	def := DefaultConfig()
	if cfg.Separator == "" {
		cfg.Separator = def.Separator
	}
	if cfg.Terminator == "" {
		cfg.Terminator = def.Terminator
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = def.QueueCapacity
	}

	s := &Session{
		transport: t,
		cfg:       cfg,
		queue:     NewQueue(cfg.QueueCapacity),
		logger:    log.OrNoop(logger).With(log.String("component", "session")),
		now:       time.Now,
	}
	t.SetMessageHandler(s.HandleMessage)
	return s
}

// SetProcessCallback installs cb; nil removes it.
func (s *Session) SetProcessCallback(cb ProcessCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.process = cb
}

// EncodeCommand renders name and args in wire form.
func (s *Session) EncodeCommand(name string, args ...any) []byte {
	return EncodeCommand(s.cfg.Separator, s.cfg.Terminator, name, args...)
}

// EncodeCommand renders name + sep + arg1 + sep + ... + terminator with
// arguments formatted by fmt.Sprint.
func EncodeCommand(sep, terminator, name string, args ...any) []byte {
	var b strings.Builder
	b.WriteString(name)
	for _, a := range args {
		b.WriteString(sep)
		fmt.Fprint(&b, a)
	}
	b.WriteString(terminator)
	return []byte(b.String())
}

// SendCommand encodes and writes a command.
func (s *Session) SendCommand(name string, args ...any) error {
	p := s.EncodeCommand(name, args...)
	if err := s.transport.Send(p); err != nil {
		return fmt.Errorf("send %s: %w", name, err)
	}
	s.logger.Debug("sent command", log.String("cmd", name), log.Int("args", len(args)))
	return nil
}

// HandleMessage decodes one raw message and queues it. Messages that are
// not JSON objects are logged and dropped.
func (s *Session) HandleMessage(msg string) {
	r, err := decodeResponse(msg, s.now())
	if err != nil {
		s.logger.Warn("got message that wasn't a JSON object", log.String("msg", msg), log.Err(err))
		return
	}

	s.logger.Info("received", log.String("cmd", r.Cmd()), log.String("record", r.String()))
	if old, evicted := s.queue.Push(r); evicted {
		s.logger.Warn("response queue full, dropped oldest record",
			log.String("dropped_cmd", old.Cmd()),
			log.Int("capacity", s.queue.Cap()),
		)
	}

	s.mu.RLock()
	cb := s.process
	s.mu.RUnlock()
	if cb != nil {
		cb(r.Clone())
	}
}

// GetNextResponse removes and returns the oldest queued record whose cmd
// equals cmd, or the oldest record at all when cmd is empty. It never blocks.
func (s *Session) GetNextResponse(cmd string) (Response, bool) {
	return s.queue.Take(cmd)
}

// WaitForResponse blocks until GetNextResponse(cmd) succeeds, timeout
// elapses or ctx is done. A timeout <= 0 waits without bound.
func (s *Session) WaitForResponse(ctx context.Context, cmd string, timeout time.Duration) (Response, error) {
	var deadline <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		deadline = t.C
	}

	for {
		changed := s.queue.Changed()
		if r, ok := s.queue.Take(cmd); ok {
			return r, nil
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case <-deadline:
			if r, ok := s.queue.Take(cmd); ok {
				return r, nil
			}
			s.logTimeout(cmd, timeout)
			if cmd != "" {
				return Response{}, fmt.Errorf("%w: cmd %s after %s", ErrNoResponse, cmd, timeout)
			}
			return Response{}, fmt.Errorf("%w after %s", ErrNoResponse, timeout)
		}
	}
}

func (s *Session) logTimeout(cmd string, timeout time.Duration) {
	fields := []log.Field{log.Duration("timeout", timeout)}
	if cmd != "" {
		fields = append(fields, log.String("cmd", cmd))
	}
	s.logger.Warn("couldn't get response", fields...)

	pending := s.queue.Snapshot()
	cmds := make([]string, len(pending))
	for i, r := range pending {
		cmds[i] = r.Cmd()
	}
	s.logger.Debug("pending records", log.Int("count", len(pending)), log.Any("cmds", cmds))
}

// Request sends a command and waits up to timeout for its record.
func (s *Session) Request(ctx context.Context, timeout time.Duration, name string, args ...any) (Response, error) {
	if err := s.SendCommand(name, args...); err != nil {
		return Response{}, err
	}
	return s.WaitForResponse(ctx, name, timeout)
}

// Call runs a two-phase exchange; see Call.
func (s *Session) Call(ctx context.Context, opts CallOptions, name string, args ...any) (Response, error) {
	return NewCall(s, opts, name, args...).Run(ctx)
}

// Len returns the number of queued records.
func (s *Session) Len() int {
	return s.queue.Len()
}

// Pending returns the queued records, oldest first, without removing them.
func (s *Session) Pending() []Response {
	return s.queue.Snapshot()
}

// Evicted returns how many records were dropped because the queue was full.
func (s *Session) Evicted() uint64 {
	return s.queue.Evicted()
}

// IsTimeout reports whether err means no matching record arrived in time.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrNoResponse)
}
