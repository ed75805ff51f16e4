package misc

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"
)

type ProgressStats struct {
	totalBytes int64
	totalItems int64
	lastBytes  int64
	startTime  time.Time
	lastTime   time.Time
	lastSpeed  float64
}

type StatResult struct {
	TotalBytes int64
	TotalItems int64
	SpeedBps   float64
}

func NewProgressStats() *ProgressStats {
	now := time.Now()
	return &ProgressStats{
		startTime: now,
		lastTime:  now,
	}
}

func (p *ProgressStats) ResetStart() {
	now := time.Now()
	p.startTime = now
	p.lastTime = now
}

// Update adds n transferred bytes.
func (p *ProgressStats) Update(n int64) {
	atomic.AddInt64(&p.totalBytes, n)
}

// ItemDone counts one completed file.
func (p *ProgressStats) ItemDone() {
	atomic.AddInt64(&p.totalItems, 1)
}

func (p *ProgressStats) Stats(now time.Time, final bool) StatResult {
	currentTotal := atomic.LoadInt64(&p.totalBytes)

	var timeDiff float64
	var bytesDiff int64

	if final {
		timeDiff = now.Sub(p.startTime).Seconds()
		bytesDiff = currentTotal
	} else {
		timeDiff = now.Sub(p.lastTime).Seconds()
		bytesDiff = currentTotal - p.lastBytes
	}

	var speed float64
	if timeDiff > 0 {
		speed = float64(bytesDiff) / timeDiff
		p.lastSpeed = speed
	} else {
		speed = p.lastSpeed
	}

	p.lastTime = now
	p.lastBytes = currentTotal

	return StatResult{
		TotalBytes: currentTotal,
		TotalItems: atomic.LoadInt64(&p.totalItems),
		SpeedBps:   speed,
	}
}

func (p *ProgressStats) StartTime() time.Time {
	return p.startTime
}

// CountingReader feeds every byte read through R into Stats.
type CountingReader struct {
	R     io.Reader
	Stats *ProgressStats
}

func (cr *CountingReader) Read(b []byte) (n int, err error) {
	n, err = cr.R.Read(b)
	if n > 0 {
		cr.Stats.Update(int64(n))
	}
	return
}

func FormatBytes(bytes int64) string {
	units := []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB", "EiB", "ZiB"}
	value := float64(bytes)

	for _, unit := range units {
		if value < 1024.0 {
			return fmt.Sprintf("%.1f %s", value, unit)
		}
		value /= 1024.0
	}
	return fmt.Sprintf("%.1f YiB", value)
}
