package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestValidLevel(t *testing.T) {
	for _, lvl := range []string{"trace", "DEBUG", "info", "warn", "warning", "Error"} {
		if !ValidLevel(lvl) {
			t.Errorf("ValidLevel(%q) = false, want true", lvl)
		}
	}
	for _, lvl := range []string{"", "verbose", "fatal"} {
		if ValidLevel(lvl) {
			t.Errorf("ValidLevel(%q) = true, want false", lvl)
		}
	}
}

// TestNopDiscards makes sure a disabled logger can be used without output or panics
func TestNopDiscards(t *testing.T) {
	l := Nop()
	l.Error("error")
	l.Warn("warn")
	l.Info("info")
	l.Debug("debug")
	l.Trace("trace")
}

func TestNewWritesToWriter(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "info", true)

	l.Debug("hidden detail")
	l.Error("[dispatch] connect failed")

	out := buf.String()
	if !strings.Contains(out, "[dispatch] connect failed") {
		t.Errorf("error line missing from writer: %q", out)
	}
	if strings.Contains(out, "hidden detail") {
		t.Errorf("debug line written at info level: %q", out)
	}
	if strings.Contains(out, "\x1b[") {
		t.Errorf("colors used on a non-terminal writer: %q", out)
	}
}
