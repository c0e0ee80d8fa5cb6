package cliconfig

import "os"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "STOMALINK_"

func env(key string) string {
	return os.Getenv(EnvPrefix + key)
}

// ApplyEnvConfig applies configuration from environment variables (STOMALINK_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("port", env("PORT"), &cfg.Port)
	s.setString("driver", env("DRIVER"), &cfg.Driver)
	s.setString("terminator", env("TERMINATOR"), &cfg.Terminator)
	s.setString("ignore", env("IGNORE"), &cfg.Ignore)
	s.setString("separator", env("SEPARATOR"), &cfg.Separator)
	s.setString("state-dir", env("STATE_DIR"), &cfg.StateDir)
	s.setString("log-level", env("LOG_LEVEL"), &cfg.LogLevel)
	s.setString("log-file", env("LOG_FILE"), &cfg.LogFile)

	if err := s.setDuration("read-timeout", env("READ_TIMEOUT"), &cfg.ReadTimeout); err != nil {
		return err
	}
	if err := s.setDuration("write-timeout", env("WRITE_TIMEOUT"), &cfg.WriteTimeout); err != nil {
		return err
	}
	if err := s.setDuration("idle-interval", env("IDLE_INTERVAL"), &cfg.IdleInterval); err != nil {
		return err
	}
	if err := s.setDuration("ack-timeout", env("ACK_TIMEOUT"), &cfg.AckTimeout); err != nil {
		return err
	}
	if err := s.setDuration("wait-for-port", env("WAIT_FOR_PORT"), &cfg.WaitForPort); err != nil {
		return err
	}

	if err := s.setIntFromString("baud", env("BAUD"), &cfg.BaudRate); err != nil {
		return err
	}
	if err := s.setIntFromString("max-message-len", env("MAX_MESSAGE_LEN"), &cfg.MaxMessageLen); err != nil {
		return err
	}
	if err := s.setIntFromString("queue-capacity", env("QUEUE_CAPACITY"), &cfg.QueueCapacity); err != nil {
		return err
	}

	s.setBoolFromString("skip-port-check", env("SKIP_PORT_CHECK"), &cfg.SkipPortCheck)

	return nil
}
