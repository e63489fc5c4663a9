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
		t.Error("custom logger was not called")
	}

	// Nil installs a no-op logger that must not panic or call anything.
	called = false
	SetLogger(nil)
	Logf("test message")
	if called {
		t.Error("no-op logger should not have triggered callback")
	}
}

func TestDebugf_GatedByToggle(t *testing.T) {
	original := Logf
	defer func() {
		Logf = original
		SetDebug(false)
	}()

	calls := 0
	SetLogger(func(format string, v ...interface{}) {
		calls++
	})

	SetDebug(false)
	Debugf("dropped sample ts=%d", 42)
	if calls != 0 {
		t.Errorf("Debugf logged with debug disabled: %d calls", calls)
	}

	SetDebug(true)
	Debugf("dropped sample ts=%d", 42)
	if calls != 1 {
		t.Errorf("expected 1 debug log call, got %d", calls)
	}
}
