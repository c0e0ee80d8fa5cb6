// Package state persists the last successful calibration.
//
// After a calibration run is saved on the device, the resulting table
// is written to calibration.json so operators can inspect or restore
// it later.
//
// # Usage
//
//	repo := state.NewFileRepository("/home/user/.stomalink")
//
//	snap, err := repo.Load(ctx)
//	if err != nil {
//	    return err
//	}
//	if c, ok := snap.Lookup(0); ok {
//	    fmt.Println(c.O, c.P)
//	}
//
// # Version
//
// Current version: 2.0.0
// Minimum compatible version: 2.0.0
//
// See version.go for version constants that can be used programmatically.
package state
