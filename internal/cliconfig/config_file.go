package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	Port          string `toml:"port"`
	BaudRate      int    `toml:"baud"`
	Driver        string `toml:"driver"`
	Terminator    string `toml:"terminator"`
	Ignore        string `toml:"ignore"`
	Separator     string `toml:"separator"`
	MaxMessageLen int    `toml:"max_message_len"`
	ReadTimeout   string `toml:"read_timeout"`
	WriteTimeout  string `toml:"write_timeout"`
	IdleInterval  string `toml:"idle_interval"`
	QueueCapacity int    `toml:"queue_capacity"`
	AckTimeout    string `toml:"ack_timeout"`
	StateDir      string `toml:"state_dir"`
	LogLevel      string `toml:"log_level"`
	LogFile       string `toml:"log_file"`
	WaitForPort   string `toml:"wait_for_port"`
	SkipPortCheck *bool  `toml:"skip_port_check"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.stomalink/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".stomalink", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("port", fc.Port, &cfg.Port)
	s.setString("driver", fc.Driver, &cfg.Driver)
	s.setString("terminator", fc.Terminator, &cfg.Terminator)
	s.setString("ignore", fc.Ignore, &cfg.Ignore)
	s.setString("separator", fc.Separator, &cfg.Separator)
	s.setString("state-dir", fc.StateDir, &cfg.StateDir)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setString("log-file", fc.LogFile, &cfg.LogFile)

	if err := s.setDuration("read-timeout", fc.ReadTimeout, &cfg.ReadTimeout); err != nil {
		return err
	}
	if err := s.setDuration("write-timeout", fc.WriteTimeout, &cfg.WriteTimeout); err != nil {
		return err
	}
	if err := s.setDuration("idle-interval", fc.IdleInterval, &cfg.IdleInterval); err != nil {
		return err
	}
	if err := s.setDuration("ack-timeout", fc.AckTimeout, &cfg.AckTimeout); err != nil {
		return err
	}
	if err := s.setDuration("wait-for-port", fc.WaitForPort, &cfg.WaitForPort); err != nil {
		return err
	}

	s.setInt("baud", fc.BaudRate, &cfg.BaudRate)
	s.setInt("max-message-len", fc.MaxMessageLen, &cfg.MaxMessageLen)
	s.setInt("queue-capacity", fc.QueueCapacity, &cfg.QueueCapacity)

	s.setBool("skip-port-check", fc.SkipPortCheck, &cfg.SkipPortCheck)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
