package stomalink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/stomasense/stomalink/pkg/lifecycle"
	"github.com/stomasense/stomalink/pkg/link"
	"github.com/stomasense/stomalink/pkg/log"
	"github.com/stomasense/stomalink/pkg/session"
)

// Client owns one serial link and the session correlating its traffic.
// Use New() to create an instance, then Start() to open the device.
type Client struct {
	config    Config
	opts      options
	lifecycle *lifecycle.DefaultManager
	link      *link.Link
	session   *session.Session
	lister    link.Lister
	logger    log.Logger

	mu sync.Mutex
}

// New creates a Client in StateStopped.
// Returns an error if configuration is invalid.
func New(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := validateModuleVersions(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	logger := log.OrNoop(o.logger)

	var linkOpts []link.Option
	if o.opener != nil {
		linkOpts = append(linkOpts, link.WithOpener(o.opener))
	}
	lister := o.lister
	if lister == nil {
		lister = link.ListPorts
	}
	linkOpts = append(linkOpts, link.WithLister(lister))

	l, err := link.New(cfg.Link, logger, linkOpts...)
	if err != nil {
		return nil, err
	}
	s := session.New(l, cfg.Session, logger)

	c := &Client{
		config:    cfg,
		opts:      o,
		lifecycle: lifecycle.NewManager(logger, eventEmitterWrapper{handler: o.eventHandler}),
		link:      l,
		session:   s,
		lister:    lister,
		logger:    logger,
	}
	if o.process != nil || o.eventHandler != nil {
		s.SetProcessCallback(c.dispatch)
	}
	return c, nil
}

func (c *Client) dispatch(r session.Response) {
	if c.opts.process != nil {
		c.opts.process(r)
	}
	if c.opts.eventHandler != nil {
		c.opts.eventHandler.OnResponse(r)
	}
}

// Start opens the device and starts the receive loop. When WaitForPort
// is set it first waits for the device to be attached; Stop or ctx
// cancellation abort that wait.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if !c.lifecycle.CanStart() {
		c.mu.Unlock()
		return lifecycle.ErrAlreadyRunning
	}
	if err := c.lifecycle.TransitionTo(lifecycle.StateStarting, "Start() called"); err != nil {
		c.mu.Unlock()
		return err
	}
	startCtx, cancel := context.WithCancel(ctx)
	c.lifecycle.SetCancel(cancel)
	c.mu.Unlock()
	defer cancel()

	if c.config.WaitForPort > 0 {
		c.logger.Info("waiting for port",
			log.String("port", c.config.Link.Port),
			log.Duration("timeout", c.config.WaitForPort),
		)
		waitCtx, waitCancel := context.WithTimeout(startCtx, c.config.WaitForPort)
		err := link.WaitForPort(waitCtx, c.config.Link.Port, c.lister, c.config.PortPollInterval)
		waitCancel()
		if err != nil {
			return c.abortStart(err)
		}
	}

	if err := c.link.Open(); err != nil {
		return c.abortStart(err)
	}
	if err := c.link.StartReceiveLoop(); err != nil {
		_ = c.link.Close()
		return c.abortStart(err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.lifecycle.SetCancel(nil)
	if c.lifecycle.State() != lifecycle.StateStarting {
		// Stop ran while the port was opening.
		_ = c.link.Close()
		return context.Canceled
	}
	return c.lifecycle.TransitionTo(lifecycle.StateRunning, "receive loop started")
}

func (c *Client) abortStart(err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lifecycle.SetCancel(nil)
	if c.lifecycle.State() == lifecycle.StateStarting {
		c.logger.Error("start failed", log.Err(err))
		_ = c.lifecycle.TransitionTo(lifecycle.StateCrashed, err.Error())
	}
	return err
}

// Stop closes the link: the receive loop is joined before the port is
// released. Returns lifecycle.ErrNotRunning if the client is not started.
func (c *Client) Stop() error {
	c.mu.Lock()
	if !c.lifecycle.CanStop() {
		c.mu.Unlock()
		return lifecycle.ErrNotRunning
	}
	if err := c.lifecycle.TransitionTo(lifecycle.StateStopping, "Stop() called"); err != nil {
		c.mu.Unlock()
		return err
	}
	c.lifecycle.Cancel()
	c.mu.Unlock()

	if err := c.link.Close(); err != nil {
		_ = c.lifecycle.TransitionTo(lifecycle.StateCrashed, "close failed: "+err.Error())
		return fmt.Errorf("close link: %w", err)
	}
	return c.lifecycle.TransitionTo(lifecycle.StateStopped, "link closed")
}

// Status returns the current lifecycle state.
// Safe to call concurrently from any goroutine.
func (c *Client) Status() State {
	return c.lifecycle.State()
}

// Session returns the session for sending commands and awaiting records.
func (c *Client) Session() *session.Session {
	return c.session
}

// Link returns the underlying serial link.
func (c *Client) Link() *link.Link {
	return c.link
}

// Request sends a command and waits up to timeout for its record.
func (c *Client) Request(ctx context.Context, timeout time.Duration, name string, args ...any) (session.Response, error) {
	if c.Status() != StateRunning {
		return session.Response{}, lifecycle.ErrNotRunning
	}
	return c.session.Request(ctx, timeout, name, args...)
}

// IsNotRunning reports whether err came from using a client that is not started.
func IsNotRunning(err error) bool {
	return errors.Is(err, lifecycle.ErrNotRunning)
}
