// Package log provides the logging port used by stomalink components.
//
// Link, Session and the calibration workflows never reach for a global
// logger; they receive a Logger at construction time. A zerolog adapter
// and a no-op logger are provided.
//
// # Usage
//
// Wrap an existing zerolog logger:
//
//	logger := log.NewZerologAdapterWithLogger(zerolog.New(os.Stderr))
//
// Or build one from a level and an optional JSON log file:
//
//	logger, closeFn, err := log.NewZerologAdapterFromOptions(log.Options{
//	    Level: "debug",
//	    File:  "/var/log/stomalink.log",
//	})
//
// Use the no-op logger in tests:
//
//	logger := log.NewNoopLogger()
//
// Component loggers carry their own context:
//
//	linkLog := logger.With(log.String("component", "link"))
//
// # Version
//
// Current version: 1.1.0
// Minimum compatible version: 1.0.0
//
// See version.go for version constants that can be used programmatically.
package log
