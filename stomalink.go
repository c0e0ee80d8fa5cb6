// Package stomalink is a host-side client for StomaSense devices.
//
// Example usage:
//
//	cfg := stomalink.DefaultConfig()
//	cfg.Link.Port = "/dev/ttyACM0"
//	client, err := stomalink.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := client.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Stop()
//	r, err := client.Request(ctx, 5*time.Second, "OK")
package stomalink

import (
	"github.com/stomasense/stomalink/pkg/stomalink"
)

// Config holds the link, session and startup settings of a Client.
// Use DefaultConfig() and set Link.Port before calling New.
type Config = stomalink.Config

// Client owns one serial link and its session.
type Client = stomalink.Client

// Option configures a Client.
type Option = stomalink.Option

// EventHandler receives lifecycle and record notifications.
type EventHandler = stomalink.EventHandler

// BaseEventHandler provides no-op EventHandler methods for embedding.
type BaseEventHandler = stomalink.BaseEventHandler

// StateChangeEvent describes a lifecycle transition.
type StateChangeEvent = stomalink.StateChangeEvent

// State is the lifecycle state of a Client.
type State = stomalink.State

const (
	StateStopped  = stomalink.StateStopped
	StateStarting = stomalink.StateStarting
	StateRunning  = stomalink.StateRunning
	StateStopping = stomalink.StateStopping
	StateCrashed  = stomalink.StateCrashed
)

// New creates a Client. See pkg/stomalink for details.
func New(cfg Config, opts ...Option) (*Client, error) {
	return stomalink.New(cfg, opts...)
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return stomalink.DefaultConfig()
}

var (
	WithLogger          = stomalink.WithLogger
	WithEventHandler    = stomalink.WithEventHandler
	WithProcessCallback = stomalink.WithProcessCallback
	WithOpener          = stomalink.WithOpener
	WithLister          = stomalink.WithLister
	IsNotRunning        = stomalink.IsNotRunning
)
