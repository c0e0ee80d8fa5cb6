package cliconfig

import (
	"testing"
	"time"
)

func TestApplyEnvConfig(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		changed  map[string]bool
		initial  Config
		expected Config
		wantErr  bool
	}{
		{
			name: "applies all valid env vars",
			envVars: map[string]string{
				"STOMALINK_PORT":            "/dev/ttyENV",
				"STOMALINK_BAUD":            "9600",
				"STOMALINK_ACK_TIMEOUT":     "2s",
				"STOMALINK_QUEUE_CAPACITY":  "32",
				"STOMALINK_SKIP_PORT_CHECK": "true",
				"STOMALINK_LOG_LEVEL":       "debug",
			},
			changed: map[string]bool{},
			initial: Config{},
			expected: Config{
				Port:          "/dev/ttyENV",
				BaudRate:      9600,
				AckTimeout:    2 * time.Second,
				QueueCapacity: 32,
				SkipPortCheck: true,
				LogLevel:      "debug",
			},
			wantErr: false,
		},
		{
			name: "respects changed flags",
			envVars: map[string]string{
				"STOMALINK_PORT":   "/dev/ttyENV",
				"STOMALINK_DRIVER": "gobug",
			},
			changed: map[string]bool{"port": true},
			initial: Config{
				Port: "/dev/ttyFLAG",
			},
			expected: Config{
				Port:   "/dev/ttyFLAG",
				Driver: "gobug",
			},
			wantErr: false,
		},
		{
			name: "returns error for invalid duration",
			envVars: map[string]string{
				"STOMALINK_READ_TIMEOUT": "not-a-duration",
			},
			changed: map[string]bool{},
			wantErr: true,
		},
		{
			name: "returns error for invalid int",
			envVars: map[string]string{
				"STOMALINK_BAUD": "fast",
			},
			changed: map[string]bool{},
			wantErr: true,
		},
		{
			name: "handles bool '1' as true",
			envVars: map[string]string{
				"STOMALINK_SKIP_PORT_CHECK": "1",
			},
			changed: map[string]bool{},
			initial: Config{},
			expected: Config{
				SkipPortCheck: true,
			},
			wantErr: false,
		},
		{
			name: "handles bool 'false' as false",
			envVars: map[string]string{
				"STOMALINK_SKIP_PORT_CHECK": "false",
			},
			changed: map[string]bool{},
			initial: Config{SkipPortCheck: true},
			expected: Config{
				SkipPortCheck: false,
			},
			wantErr: false,
		},
		{
			name: "handles all field types correctly",
			envVars: map[string]string{
				"STOMALINK_PORT":            "/dev/ttyACM1",
				"STOMALINK_BAUD":            "57600",
				"STOMALINK_DRIVER":          "tarm",
				"STOMALINK_TERMINATOR":      `\r`,
				"STOMALINK_IGNORE":          `\n`,
				"STOMALINK_SEPARATOR":       ",",
				"STOMALINK_MAX_MESSAGE_LEN": "2048",
				"STOMALINK_READ_TIMEOUT":    "10ms",
				"STOMALINK_WRITE_TIMEOUT":   "2s",
				"STOMALINK_IDLE_INTERVAL":   "1ms",
				"STOMALINK_QUEUE_CAPACITY":  "8",
				"STOMALINK_ACK_TIMEOUT":     "3s",
				"STOMALINK_STATE_DIR":       "/state",
				"STOMALINK_LOG_LEVEL":       "error",
				"STOMALINK_LOG_FILE":        "/tmp/s.log",
				"STOMALINK_WAIT_FOR_PORT":   "1m",
				"STOMALINK_SKIP_PORT_CHECK": "true",
			},
			changed: map[string]bool{},
			initial: Config{},
			expected: Config{
				Port:          "/dev/ttyACM1",
				BaudRate:      57600,
				Driver:        "tarm",
				Terminator:    `\r`,
				Ignore:        `\n`,
				Separator:     ",",
				MaxMessageLen: 2048,
				ReadTimeout:   10 * time.Millisecond,
				WriteTimeout:  2 * time.Second,
				IdleInterval:  time.Millisecond,
				QueueCapacity: 8,
				AckTimeout:    3 * time.Second,
				StateDir:      "/state",
				LogLevel:      "error",
				LogFile:       "/tmp/s.log",
				WaitForPort:   time.Minute,
				SkipPortCheck: true,
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg := tt.initial
			err := ApplyEnvConfig(&cfg, tt.changed)

			if tt.wantErr && err == nil {
				t.Error("ApplyEnvConfig() expected error but got nil")
				return
			}
			if !tt.wantErr && err != nil {
				t.Errorf("ApplyEnvConfig() unexpected error: %v", err)
				return
			}

			if !tt.wantErr && cfg != tt.expected {
				t.Errorf("ApplyEnvConfig() = %+v, want %+v", cfg, tt.expected)
			}
		})
	}
}

// Integration test: precedence order (CLI > Env > File)
func TestConfigPrecedence(t *testing.T) {
	trueVal := true

	fileConf := FileConfig{
		Port:          "/dev/ttyFILE",
		Driver:        "tarm",
		SkipPortCheck: &trueVal,
	}

	t.Setenv("STOMALINK_PORT", "/dev/ttyENV")
	t.Setenv("STOMALINK_DRIVER", "gobug")
	t.Setenv("STOMALINK_STATE_DIR", "/env/state")

	// Simulate CLI flags
	changed := map[string]bool{
		"port": true,
	}

	cfg := Config{
		Port: "/dev/ttyCLI", // This should remain (CLI wins)
	}

	if err := ApplyFileConfig(&cfg, fileConf, changed); err != nil {
		t.Fatalf("ApplyFileConfig failed: %v", err)
	}

	if err := ApplyEnvConfig(&cfg, changed); err != nil {
		t.Fatalf("ApplyEnvConfig failed: %v", err)
	}

	if cfg.Port != "/dev/ttyCLI" {
		t.Errorf("Port = %v, want /dev/ttyCLI (CLI should win)", cfg.Port)
	}
	if cfg.Driver != "gobug" {
		t.Errorf("Driver = %v, want gobug (env should override file)", cfg.Driver)
	}
	if cfg.StateDir != "/env/state" {
		t.Errorf("StateDir = %v, want /env/state (env should set)", cfg.StateDir)
	}
	if cfg.SkipPortCheck != true {
		t.Errorf("SkipPortCheck = %v, want true (file should set)", cfg.SkipPortCheck)
	}
}
