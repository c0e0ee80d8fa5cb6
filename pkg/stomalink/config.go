package stomalink

import (
	"fmt"
	"time"

	"github.com/stomasense/stomalink/pkg/link"
	"github.com/stomasense/stomalink/pkg/session"
)

// DefaultPortPollInterval is how often Start re-lists ports while waiting.
const DefaultPortPollInterval = time.Second

// Config holds the configuration of a Client.
type Config struct {
	// Link configures the serial transport. Link.Port is required.
	Link link.Config

	// Session configures command encoding and the response queue.
	Session session.Config

	// WaitForPort bounds how long Start waits for the device to be
	// attached. Zero fails immediately when it is missing.
	WaitForPort time.Duration

	// PortPollInterval is the re-list period used while waiting.
	PortPollInterval time.Duration
}

// DefaultConfig returns a Config with default values. Link.Port must still be set.
func DefaultConfig() Config {
	return Config{
		Link:             link.DefaultConfig(),
		Session:          session.DefaultConfig(),
		PortPollInterval: DefaultPortPollInterval,
	}
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	if err := c.Link.Validate(); err != nil {
		return err
	}
	if c.WaitForPort < 0 {
		return fmt.Errorf("%w: wait-for-port must not be negative", link.ErrInvalidConfig)
	}
	if c.PortPollInterval <= 0 {
		c.PortPollInterval = DefaultPortPollInterval
	}
	return nil
}
