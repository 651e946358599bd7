package monitoring

import (
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) {
		called = true
	})
	Logf("test message")
	if !called {
		t.Error("Custom logger was not called")
	}

	// A nil logger becomes a no-op rather than panicking.
	called = false
	SetLogger(nil)
	Logf("test message")
	if called {
		t.Error("No-op logger should not have triggered callback")
	}
}

func TestDebugf(t *testing.T) {
	original := Logf
	defer func() {
		Logf = original
		SetVerbose(false)
	}()

	var lines []string
	SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, format)
	})

	SetVerbose(false)
	Debugf("tick %d", 1)
	if len(lines) != 0 {
		t.Errorf("Debugf logged %d lines while quiet, want 0", len(lines))
	}

	SetVerbose(true)
	Debugf("tick %d", 2)
	if len(lines) != 1 || lines[0] != "tick %d" {
		t.Errorf("Debugf lines = %v, want one tick line", lines)
	}
}
