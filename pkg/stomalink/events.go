package stomalink

import (
	"github.com/stomasense/stomalink/pkg/lifecycle"
	"github.com/stomasense/stomalink/pkg/session"
)

// State is the lifecycle state of a Client.
type State = lifecycle.State

// Lifecycle states.
const (
	StateStopped  = lifecycle.StateStopped
	StateStarting = lifecycle.StateStarting
	StateRunning  = lifecycle.StateRunning
	StateStopping = lifecycle.StateStopping
	StateCrashed  = lifecycle.StateCrashed
)

// StateChangeEvent describes a lifecycle transition.
type StateChangeEvent struct {
	Previous State
	Current  State
	Reason   string
}

// EventHandler receives client notifications. Implementations should
// return quickly.
type EventHandler interface {
	OnStateChange(event StateChangeEvent)
	OnResponse(r session.Response)
}

// BaseEventHandler provides no-op implementations for embedding.
type BaseEventHandler struct{}

// OnStateChange does nothing.
func (BaseEventHandler) OnStateChange(StateChangeEvent) {}

// OnResponse does nothing.
func (BaseEventHandler) OnResponse(session.Response) {}

// eventEmitterWrapper adapts EventHandler to lifecycle.EventEmitter.
type eventEmitterWrapper struct {
	handler EventHandler
}

func (e eventEmitterWrapper) OnStateChange(previous, current lifecycle.State, reason string) {
	if e.handler == nil {
		return
	}
	e.handler.OnStateChange(StateChangeEvent{
		Previous: previous,
		Current:  current,
		Reason:   reason,
	})
}
