//go:build !windows

package event

import "golang.org/x/sys/unix"

func monotonicNanos() int64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		panic("event: CLOCK_MONOTONIC unavailable: " + err.Error())
	}

	return ts.Nano()
}
