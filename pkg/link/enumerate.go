package link

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"
	gobug "go.bug.st/serial"
)

// Lister enumerates the serial ports currently attached to the host.
type Lister func() ([]string, error)

// ListPorts returns the attached serial ports as reported by go.bug.st/serial.
func ListPorts() ([]string, error) {
	return gobug.GetPortsList()
}

// CheckAttached returns ErrPortNotFound unless name is reported by lister.
func CheckAttached(name string, lister Lister) error {
	if lister == nil {
		lister = ListPorts
	}
	ports, err := lister()
	if err != nil {
		return fmt.Errorf("list ports: %w", err)
	}
	if !slices.Contains(ports, name) {
		return fmt.Errorf("%w: %s (available: %v)", ErrPortNotFound, name, ports)
	}
	return nil
}

// WaitForPort blocks until name is attached or ctx is done.
// Device-node creation in the port's directory triggers an immediate
// re-check; a ticker at interval covers platforms without device nodes.
func WaitForPort(ctx context.Context, name string, lister Lister, interval time.Duration) error {
	if lister == nil {
		lister = ListPorts
	}
	if interval <= 0 {
		interval = time.Second
	}
	if CheckAttached(name, lister) == nil {
		return nil
	}

	var events chan fsnotify.Event
	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		defer watcher.Close()
		if addErr := watcher.Add(filepath.Dir(name)); addErr == nil {
			events = watcher.Events
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for port %s: %w", name, ctx.Err())
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Op&fsnotify.Create == 0 || ev.Name != name {
				continue
			}
		case <-ticker.C:
		}
		if CheckAttached(name, lister) == nil {
			return nil
		}
	}
}
