package misc

import (
	"bytes"
	"strings"
	"testing"
)

func TestLogger_Levels(t *testing.T) {
	tests := []struct {
		level  Level
		expect []string
		absent []string
	}{
		{LevelError, []string{"[ERROR] e1"}, []string{"w1", "i1", "d1"}},
		{LevelWarn, []string{"[ERROR] e1", "[WARN ] w1"}, []string{"i1", "d1"}},
		{LevelInfo, []string{"[WARN ] w1", "[INFO ] i1"}, []string{"d1"}},
		{LevelDebug, []string{"[INFO ] i1", "[DEBUG] d1"}, nil},
	}

	for _, tt := range tests {
		var buf bytes.Buffer
		lg := NewLogger(&buf, "[t] ", tt.level)
		lg.Errorf("e%d", 1)
		lg.Warnf("w%d", 1)
		lg.Infof("i%d", 1)
		lg.Debugf("d%d", 1)

		out := buf.String()
		for _, s := range tt.expect {
			if !strings.Contains(out, s) {
				t.Errorf("level %d: missing %q in %q", tt.level, s, out)
			}
		}
		for _, s := range tt.absent {
			if strings.Contains(out, s) {
				t.Errorf("level %d: unexpected %q in %q", tt.level, s, out)
			}
		}
		if strings.Contains(out, "\033[") {
			t.Errorf("colors must be off for a buffer")
		}
	}
}

func TestLogger_NilAndDiscard(t *testing.T) {
	var lg *Logger
	lg.Errorf("nothing")
	if lg.Enabled(LevelError) {
		t.Errorf("nil logger reports enabled")
	}
	Discard().Warnf("dropped")
}

func TestLogger_SetLevel(t *testing.T) {
	var buf bytes.Buffer
	lg := NewLogger(&buf, "", LevelError)
	lg.Infof("hidden")
	lg.SetLevel(LevelInfo)
	lg.Infof("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("unexpected output %q", buf.String())
	}
}
