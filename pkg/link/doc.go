// Package link owns the physical serial link to a StomaSense device.
//
// A Link opens a port through a pluggable driver, writes raw bytes and runs
// exactly one background goroutine that reassembles terminator-delimited
// messages from the incoming byte stream. Each reassembled message is passed
// to the installed MessageHandler.
//
// # Usage
//
//	cfg := link.DefaultConfig()
//	cfg.Port = "/dev/ttyACM0"
//
//	l, err := link.New(cfg, logger)
//	if err != nil {
//	    return err
//	}
//	l.SetMessageHandler(func(msg string) { fmt.Println(msg) })
//	if err := l.StartReceiveLoop(); err != nil {
//	    return err
//	}
//	defer l.Close()
//
// # Drivers
//
// Two drivers are registered: "tarm" (github.com/tarm/serial, the default)
// and "gobug" (go.bug.st/serial). Port enumeration always goes through
// go.bug.st/serial.
//
// # Shutdown
//
// Close stops the receive loop and waits for the goroutine to exit before
// the port handle is closed.
//
// # Version
//
// Current version: 1.0.0
// Minimum compatible version: 1.0.0
package link
