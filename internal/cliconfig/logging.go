package cliconfig

import (
	"io"

	"github.com/stomasense/stomalink/pkg/log"
)

// NewLogger builds the CLI logger from the configured level and optional
// log file. The returned close function is never nil.
func NewLogger(cfg Config, console io.Writer) (*log.ZerologAdapter, func() error, error) {
	return log.NewZerologAdapterFromOptions(log.Options{
		Level:   cfg.LogLevel,
		File:    cfg.LogFile,
		Console: console,
	})
}
