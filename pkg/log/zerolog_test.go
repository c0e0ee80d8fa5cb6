package log

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestZerologAdapter_WithAddsContext(t *testing.T) {
	var buf bytes.Buffer
	base := NewZerologAdapterWithLogger(zerolog.New(&buf))

	base.With(String("component", "link")).Warn("dropped", Int("n", 3), Err(errors.New("boom")))

	out := buf.String()
	for _, want := range []string{`"component":"link"`, `"n":3`, `"error":"boom"`, `"level":"warn"`} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %s", out, want)
		}
	}
}

func TestNewZerologAdapterFromOptions(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "stomalink.log")

	l, closeFn, err := NewZerologAdapterFromOptions(Options{Level: "warn", File: path, Console: &console})
	if err != nil {
		t.Fatalf("NewZerologAdapterFromOptions: %v", err)
	}

	l.Info("hidden")
	l.Warn("shown")
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(data), "hidden") {
		t.Errorf("info message written at warn level: %s", data)
	}
	if !strings.Contains(string(data), "shown") {
		t.Errorf("warn message missing from file: %s", data)
	}
	if !strings.Contains(console.String(), "shown") {
		t.Errorf("warn message missing from console: %s", console.String())
	}
}

func TestNewZerologAdapterFromOptions_BadLevel(t *testing.T) {
	_, closeFn, err := NewZerologAdapterFromOptions(Options{Level: "loud"})
	if err == nil {
		t.Fatal("expected error for unknown level")
	}
	if closeFn == nil {
		t.Fatal("close function must never be nil")
	}
}

func TestOrNoop(t *testing.T) {
	if _, ok := OrNoop(nil).(NoopLogger); !ok {
		t.Error("OrNoop(nil) should return NoopLogger")
	}
	z := NewZerologAdapter()
	if OrNoop(z) != Logger(z) {
		t.Error("OrNoop should pass through non-nil loggers")
	}
}
