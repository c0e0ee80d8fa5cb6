package link

import "errors"

var (
	// ErrNotOpen is returned when an operation needs an open port.
	ErrNotOpen = errors.New("link: port not open")

	// ErrPortNotFound is returned when the configured port is not attached.
	ErrPortNotFound = errors.New("link: port not found")

	// ErrWriteTimeout is returned when a write does not finish within WriteTimeout.
	ErrWriteTimeout = errors.New("link: write timeout")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("link: invalid configuration")

	// ErrUnknownDriver is returned for a driver name with no registered opener.
	ErrUnknownDriver = errors.New("link: unknown driver")
)
