package link

import (
	"fmt"
	"strings"
	"time"
)

// Defaults mirror the firmware's serial settings.
const (
	DefaultBaudRate      = 115200
	DefaultTerminator    = '\n'
	DefaultIgnore        = "\r"
	DefaultMaxMessageLen = 1024
	DefaultReadTimeout   = 100 * time.Millisecond
	DefaultWriteTimeout  = 3 * time.Second
	DefaultIdleInterval  = 100 * time.Millisecond
	DefaultDriver        = DriverTarm
)

// Config describes one serial link.
type Config struct {
	// Port is the device identifier, e.g. /dev/ttyACM0 or COM3.
	Port     string
	BaudRate int

	// Terminator ends a message on the wire.
	Terminator byte

	// Ignore lists bytes stripped from the stream before framing.
	Ignore string

	// MaxMessageLen bounds an in-progress message; older bytes slide out.
	MaxMessageLen int

	// ReadTimeout is how long a single driver read may block.
	ReadTimeout time.Duration

	// WriteTimeout bounds Send. Zero disables the bound.
	WriteTimeout time.Duration

	// IdleInterval is slept when a read returns no bytes.
	IdleInterval time.Duration

	// AutoOpen lets StartReceiveLoop open a closed link.
	AutoOpen bool

	// Driver selects the registered opener ("tarm" or "gobug").
	Driver string

	// SkipPortCheck disables the attached-port check in Open.
	SkipPortCheck bool
}

// DefaultConfig returns a Config with default values. Port must still be set.
func DefaultConfig() Config {
	return Config{
		BaudRate:      DefaultBaudRate,
		Terminator:    DefaultTerminator,
		Ignore:        DefaultIgnore,
		MaxMessageLen: DefaultMaxMessageLen,
		ReadTimeout:   DefaultReadTimeout,
		WriteTimeout:  DefaultWriteTimeout,
		IdleInterval:  DefaultIdleInterval,
		AutoOpen:      true,
		Driver:        DefaultDriver,
	}
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("%w: port is required", ErrInvalidConfig)
	}
	if c.BaudRate <= 0 {
		return fmt.Errorf("%w: baud rate must be positive", ErrInvalidConfig)
	}
	if strings.IndexByte(c.Ignore, c.Terminator) >= 0 {
		return fmt.Errorf("%w: terminator %q is also in the ignore set", ErrInvalidConfig, c.Terminator)
	}
	if c.MaxMessageLen <= 0 {
		return fmt.Errorf("%w: max message length must be positive", ErrInvalidConfig)
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("%w: read timeout must be positive", ErrInvalidConfig)
	}
	if c.WriteTimeout < 0 {
		return fmt.Errorf("%w: write timeout must not be negative", ErrInvalidConfig)
	}
	if c.IdleInterval <= 0 {
		c.IdleInterval = DefaultIdleInterval
	}
	if c.Driver == "" {
		c.Driver = DefaultDriver
	}
	return nil
}
