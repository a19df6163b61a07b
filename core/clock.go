package core

import "time"

// Clock returns the current time as seconds with sub-second precision.
// Only differences between readings matter, so any origin works as long as
// it is consistent for the lifetime of a bucket and its snapshots.
type Clock func() float64

// SystemClock is the default Clock. It reads the wall clock at nanosecond
// resolution and reports it as Unix seconds. Wall time can step backwards
// under NTP adjustment; reconciliation treats a backwards reading as zero
// elapsed time, so a step can stall accrual but never mint tokens.
func SystemClock() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}
