// Package clock supplies the time source the rest of the module reads
// through, so tests can drive deterministic timelines instead of racing the
// wall clock.
package clock

import "time"

// Clock abstracts wall-clock reads. NowMillis is what the sync loop stamps
// LWW metadata writes, folder assignments and packed update entries with.
type Clock interface {
	Now() time.Time
	NowMillis() int64
}

// System is the real clock, backed by time.Now.
type System struct{}

// Now returns the current wall-clock time.
func (System) Now() time.Time { return time.Now() }

// NowMillis returns the current Unix time in milliseconds.
func (System) NowMillis() int64 { return time.Now().UnixMilli() }

var _ Clock = System{}
