package main

import (
	"fmt"
	"time"
)

// frameStats counts presented frames and reports a rate once per interval.
type frameStats struct {
	interval time.Duration
	start    time.Time
	frames   int
	fps      float64
}

func newFrameStats(interval time.Duration, now time.Time) *frameStats {
	return &frameStats{interval: interval, start: now}
}

// tick records one frame and reports whether a new rate is available.
func (s *frameStats) tick(now time.Time) bool {
	s.frames++
	elapsed := now.Sub(s.start)
	if elapsed < s.interval {
		return false
	}
	s.fps = float64(s.frames) / elapsed.Seconds()
	s.frames = 0
	s.start = now
	return true
}

func (s *frameStats) title(base string, triangles int) string {
	return fmt.Sprintf("%s | FPS: %.0f | Tris: %d", base, s.fps, triangles)
}
