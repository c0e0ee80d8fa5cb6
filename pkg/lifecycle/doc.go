// Package lifecycle provides the client state machine.
//
// A stomalink client moves through Stopped, Starting, Running, Stopping
// and Crashed. Every change is validated and reported to an optional
// EventEmitter.
//
// # Usage
//
//	manager := lifecycle.NewManager(logger, lifecycle.EmitterFunc(
//	    func(prev, cur lifecycle.State, reason string) { ... },
//	))
//
//	if err := manager.TransitionTo(lifecycle.StateStarting, "start requested"); err != nil {
//	    return err
//	}
//
// # State Machine
//
// Valid state transitions:
//   - Stopped -> Starting
//   - Starting -> Running, Stopping, Crashed
//   - Running -> Stopping, Crashed
//   - Stopping -> Stopped, Crashed
//   - Crashed -> Starting
//
// # Version
//
// Current version: 2.0.0
// Minimum compatible version: 2.0.0
//
// See version.go for version constants that can be used programmatically.
package lifecycle
