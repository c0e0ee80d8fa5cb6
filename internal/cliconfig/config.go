package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/stomasense/stomalink/internal/calib"
	"github.com/stomasense/stomalink/pkg/link"
	"github.com/stomasense/stomalink/pkg/session"
	"github.com/stomasense/stomalink/pkg/stomalink"
)

// Config holds CLI configuration for stomalink.
type Config struct {
	Port     string
	BaudRate int
	Driver   string

	// Terminator, Ignore and Separator accept Go escapes such as \n.
	Terminator string
	Ignore     string
	Separator  string

	MaxMessageLen int
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	IdleInterval  time.Duration

	QueueCapacity int
	AckTimeout    time.Duration

	StateDir string
	LogLevel string
	LogFile  string

	WaitForPort   time.Duration
	SkipPortCheck bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		BaudRate:      link.DefaultBaudRate,
		Driver:        link.DefaultDriver,
		Terminator:    `\n`,
		Ignore:        `\r`,
		Separator:     " ",
		MaxMessageLen: link.DefaultMaxMessageLen,
		ReadTimeout:   link.DefaultReadTimeout,
		WriteTimeout:  link.DefaultWriteTimeout,
		IdleInterval:  link.DefaultIdleInterval,
		QueueCapacity: session.DefaultQueueCapacity,
		AckTimeout:    calib.DefaultTimeouts().Ack,
		StateDir:      "", // Derived from the home directory during Validate
		LogLevel:      "info",
	}
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port is required")
	}
	if c.BaudRate <= 0 {
		return fmt.Errorf("baud rate must be positive")
	}

	term, err := unescape(c.Terminator)
	if err != nil {
		return fmt.Errorf("terminator: %w", err)
	}
	if len(term) != 1 {
		return fmt.Errorf("terminator must be a single byte, got %q", term)
	}
	if _, err := unescape(c.Ignore); err != nil {
		return fmt.Errorf("ignore: %w", err)
	}
	if _, err := unescape(c.Separator); err != nil {
		return fmt.Errorf("separator: %w", err)
	}

	if c.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive")
	}
	if c.AckTimeout <= 0 {
		return fmt.Errorf("ack timeout must be positive")
	}
	if c.WaitForPort < 0 {
		return fmt.Errorf("wait-for-port must not be negative")
	}

	if c.StateDir == "" {
		c.StateDir = DefaultStateDir()
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	return nil
}

// DefaultStateDir returns ~/.stomalink, or the working directory when the
// home directory is unknown.
func DefaultStateDir() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".stomalink")
	}
	return "."
}

// LinkConfig converts to the transport configuration. Call Validate first.
func (c Config) LinkConfig() link.Config {
	lc := link.DefaultConfig()
	lc.Port = c.Port
	lc.BaudRate = c.BaudRate
	lc.Driver = c.Driver
	if term, err := unescape(c.Terminator); err == nil && len(term) == 1 {
		lc.Terminator = term[0]
	}
	if ignore, err := unescape(c.Ignore); err == nil {
		lc.Ignore = ignore
	}
	if c.MaxMessageLen > 0 {
		lc.MaxMessageLen = c.MaxMessageLen
	}
	lc.ReadTimeout = c.ReadTimeout
	lc.WriteTimeout = c.WriteTimeout
	lc.IdleInterval = c.IdleInterval
	lc.SkipPortCheck = c.SkipPortCheck
	return lc
}

// SessionConfig converts to the session configuration. Commands are
// terminated with the same byte the device uses.
func (c Config) SessionConfig() session.Config {
	sc := session.DefaultConfig()
	if sep, err := unescape(c.Separator); err == nil && sep != "" {
		sc.Separator = sep
	}
	if term, err := unescape(c.Terminator); err == nil && term != "" {
		sc.Terminator = term
	}
	if c.QueueCapacity > 0 {
		sc.QueueCapacity = c.QueueCapacity
	}
	return sc
}

// ClientConfig converts to the embeddable client configuration.
func (c Config) ClientConfig() stomalink.Config {
	cc := stomalink.DefaultConfig()
	cc.Link = c.LinkConfig()
	cc.Session = c.SessionConfig()
	cc.WaitForPort = c.WaitForPort
	return cc
}

// CalibTimeouts returns the workflow timeouts.
func (c Config) CalibTimeouts() calib.Timeouts {
	t := calib.DefaultTimeouts()
	if c.AckTimeout > 0 {
		t.Ack = c.AckTimeout
	}
	return t
}

func unescape(s string) (string, error) {
	if s == "" {
		return "", nil
	}
	return strconv.Unquote(`"` + s + `"`)
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
// Used for environment variables that come as strings.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
