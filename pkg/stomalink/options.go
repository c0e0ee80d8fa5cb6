package stomalink

import (
	"github.com/stomasense/stomalink/pkg/link"
	"github.com/stomasense/stomalink/pkg/log"
	"github.com/stomasense/stomalink/pkg/session"
)

// Option configures optional behavior of a Client.
type Option func(*options)

type options struct {
	logger       log.Logger
	eventHandler EventHandler
	process      session.ProcessCallback
	opener       link.Opener
	lister       link.Lister
}

func defaultOptions() options {
	return options{
		logger: log.NewNoopLogger(),
	}
}

// WithLogger sets a custom logger for structured logging.
// If not provided, a no-op logger is used (no output).
func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithEventHandler sets a handler for client events.
// Events are called synchronously; OnResponse runs on the receive goroutine.
func WithEventHandler(handler EventHandler) Option {
	return func(o *options) {
		o.eventHandler = handler
	}
}

// WithProcessCallback observes every decoded record after it was queued.
func WithProcessCallback(cb session.ProcessCallback) Option {
	return func(o *options) {
		o.process = cb
	}
}

// WithOpener replaces the serial driver, e.g. with an in-memory port.
func WithOpener(opener link.Opener) Option {
	return func(o *options) {
		o.opener = opener
	}
}

// WithLister replaces port enumeration.
func WithLister(lister link.Lister) Option {
	return func(o *options) {
		o.lister = lister
	}
}
