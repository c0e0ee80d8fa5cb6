package session

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// CallState is a stage of a two-phase exchange.
type CallState int

const (
	CallIdle CallState = iota
	CallSent
	CallAcked
	CallProcessing
	CallCompleted
	CallFailed
)

// String returns a human-readable representation of the state.
func (s CallState) String() string {
	switch s {
	case CallIdle:
		return "Idle"
	case CallSent:
		return "Sent"
	case CallAcked:
		return "Acked"
	case CallProcessing:
		return "Processing"
	case CallCompleted:
		return "Completed"
	case CallFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Commander is what a Call needs from a Session.
type Commander interface {
	SendCommand(name string, args ...any) error
	WaitForResponse(ctx context.Context, cmd string, timeout time.Duration) (Response, error)
}

// CallOptions bounds the two waits of a Call.
type CallOptions struct {
	// AckTimeout bounds the wait for the first record.
	AckTimeout time.Duration

	// ResultTimeout bounds the wait for the final record after a
	// processing acknowledgment.
	ResultTimeout time.Duration
}

// TransitionFunc observes Call state changes.
type TransitionFunc func(previous, current CallState)

// Call is one command whose result may be deferred behind a processing
// acknowledgment. A Call runs once.
type Call struct {
	cmd  Commander
	name string
	args []any
	opts CallOptions

	mu        sync.Mutex
	state     CallState
	started   bool
	ack       Response
	observers []TransitionFunc
}

// NewCall prepares a Call in CallIdle.
func NewCall(c Commander, opts CallOptions, name string, args ...any) *Call {
	return &Call{
		cmd:   c,
		name:  name,
		args:  args,
		opts:  opts,
		state: CallIdle,
	}
}

// OnTransition registers fn to be called after every state change.
func (c *Call) OnTransition(fn TransitionFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

// State returns the current state.
func (c *Call) State() CallState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Ack returns the first record received, if any.
func (c *Call) Ack() (Response, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ack, !c.ack.IsZero()
}

func (c *Call) transitionTo(next CallState) error {
	c.mu.Lock()
	prev := c.state

	valid := false
	switch prev {
	case CallIdle:
		valid = next == CallSent || next == CallFailed
	case CallSent:
		valid = next == CallAcked || next == CallFailed
	case CallAcked:
		valid = next == CallProcessing || next == CallCompleted
	case CallProcessing:
		valid = next == CallCompleted || next == CallFailed
	}
	if !valid {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, prev, next)
	}

	c.state = next
	observers := append([]TransitionFunc(nil), c.observers...)
	c.mu.Unlock()

	for _, fn := range observers {
		fn(prev, next)
	}
	return nil
}

// Run sends the command and waits for its result. If the first record
// carries a "processing" key, a second wait for the same command name
// yields the result; otherwise the first record is the result.
func (c *Call) Run(ctx context.Context) (Response, error) {
	c.mu.Lock()
	if c.started {
		s := c.state
		c.mu.Unlock()
		return Response{}, fmt.Errorf("%w: call %s already ran (%s)", ErrInvalidTransition, c.name, s)
	}
	c.started = true
	c.mu.Unlock()

	if err := c.cmd.SendCommand(c.name, c.args...); err != nil {
		_ = c.transitionTo(CallFailed)
		return Response{}, err
	}
	if err := c.transitionTo(CallSent); err != nil {
		return Response{}, err
	}

	ack, err := c.cmd.WaitForResponse(ctx, c.name, c.opts.AckTimeout)
	if err != nil {
		_ = c.transitionTo(CallFailed)
		return Response{}, err
	}
	c.mu.Lock()
	c.ack = ack
	c.mu.Unlock()
	if err := c.transitionTo(CallAcked); err != nil {
		return Response{}, err
	}

	if !ack.IsProcessing() {
		if err := c.transitionTo(CallCompleted); err != nil {
			return Response{}, err
		}
		return ack, nil
	}

	if err := c.transitionTo(CallProcessing); err != nil {
		return Response{}, err
	}
	res, err := c.cmd.WaitForResponse(ctx, c.name, c.opts.ResultTimeout)
	if err != nil {
		_ = c.transitionTo(CallFailed)
		return Response{}, err
	}
	if err := c.transitionTo(CallCompleted); err != nil {
		return Response{}, err
	}
	return res, nil
}
