// Package stomalink provides an embeddable host client for StomaSense
// devices.
//
// A Client owns a serial link and a session. The link reassembles the
// device's line-delimited output; the session decodes each line as a JSON
// object, queues it and lets callers wait for the record answering a
// command.
//
// # Basic Usage
//
//	cfg := stomalink.DefaultConfig()
//	cfg.Link.Port = "/dev/ttyACM0"
//
//	client, err := stomalink.New(cfg, stomalink.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	if err := client.Start(ctx); err != nil {
//	    return err
//	}
//	defer client.Stop()
//
//	r, err := client.Request(ctx, 5*time.Second, "OK")
//
// Commands whose result is deferred behind a {"processing": ...}
// acknowledgment are run with Session().Call.
//
// # Lifecycle States
//
// A Client is Stopped, Starting, Running, Stopping or Crashed. Register
// an [EventHandler] with [WithEventHandler] to observe transitions and
// every decoded record.
//
// # Testing
//
// [WithOpener] and [WithLister] replace the serial driver and port
// enumeration; package linktest provides an in-memory port.
package stomalink
