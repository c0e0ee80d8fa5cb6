// Package session correlates commands sent to a StomaSense device with the
// JSON records it prints back.
//
// A Session installs itself as the message handler of a link. Every
// message that decodes as a JSON object is appended to a bounded FIFO;
// callers then look records up by their "cmd" field, either immediately
// with GetNextResponse or blocking with WaitForResponse. Records that do
// not match stay queued in arrival order.
//
// # Usage
//
//	s := session.New(l, session.DefaultConfig(), logger)
//	if err := s.SendCommand("hx_calib", "get"); err != nil {
//	    return err
//	}
//	res, err := s.WaitForResponse(ctx, "hx_calib", 5*time.Second)
//
// # Two-phase calls
//
// Long-running firmware commands first acknowledge with
// {"cmd":"...","processing":true} and print the result later. Call models
// that exchange as a state machine:
//
//	Idle -> Sent -> Acked -> Processing -> Completed
//	                  \-> Completed (no processing key)
//	Sent, Processing -> Failed
//
// # Version
//
// Current version: 1.0.0
// Minimum compatible version: 1.0.0
package session
