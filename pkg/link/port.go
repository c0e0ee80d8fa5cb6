package link

import (
	"fmt"
	"io"

	tarm "github.com/tarm/serial"
	gobug "go.bug.st/serial"
)

// Driver names accepted in Config.Driver.
const (
	DriverTarm  = "tarm"
	DriverGoBug = "gobug"
)

// Port is an open serial device.
// Read must return within the configured read timeout; (0, nil) and
// (0, io.EOF) both mean no bytes were pending.
type Port interface {
	io.ReadWriteCloser
}

// Opener opens the port described by cfg.
type Opener func(cfg Config) (Port, error)

var drivers = map[string]Opener{
	DriverTarm:  OpenTarm,
	DriverGoBug: OpenGoBug,
}

// OpenerFor returns the registered opener for a driver name.
func OpenerFor(driver string) (Opener, error) {
	if driver == "" {
		driver = DefaultDriver
	}
	o, ok := drivers[driver]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
	return o, nil
}

// OpenTarm opens the port with github.com/tarm/serial.
func OpenTarm(cfg Config) (Port, error) {
	p, err := tarm.OpenPort(&tarm.Config{
		Name:        cfg.Port,
		Baud:        cfg.BaudRate,
		Parity:      tarm.ParityNone,
		StopBits:    tarm.Stop1,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// OpenGoBug opens the port with go.bug.st/serial.
func OpenGoBug(cfg Config) (Port, error) {
	p, err := gobug.Open(cfg.Port, &gobug.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   gobug.NoParity,
		StopBits: gobug.OneStopBit,
	})
	if err != nil {
		return nil, err
	}
	if err := p.SetReadTimeout(cfg.ReadTimeout); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	return p, nil
}
