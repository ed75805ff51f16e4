package misc

import (
	"strings"
	"testing"
	"time"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in     int64
		expect string
	}{
		{0, "0.0 B"},
		{1023, "1023.0 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{5 * 1024 * 1024, "5.0 MiB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.in); got != tt.expect {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.in, got, tt.expect)
		}
	}
}

func TestProgressStats(t *testing.T) {
	p := NewProgressStats()
	cr := &CountingReader{R: strings.NewReader("hello world"), Stats: p}
	buf := make([]byte, 4)
	for {
		if _, err := cr.Read(buf); err != nil {
			break
		}
	}
	p.ItemDone()
	p.ItemDone()

	st := p.Stats(p.StartTime().Add(2*time.Second), true)
	if st.TotalBytes != 11 || st.TotalItems != 2 {
		t.Errorf("got %+v", st)
	}
	if st.SpeedBps != 5.5 {
		t.Errorf("speed = %v, want 5.5", st.SpeedBps)
	}
}
