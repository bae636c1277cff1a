//go:build windows

package event

import (
	"sync"

	"golang.org/x/sys/windows"
)

var qpcFrequency = sync.OnceValue(func() int64 {
	var freq int64
	if err := windows.QueryPerformanceFrequency(&freq); err != nil || freq <= 0 {
		panic("event: QueryPerformanceFrequency failed")
	}
	return freq
})

// monotonicNanos converts QueryPerformanceCounter ticks, which are shared by
// every process on the host, into nanoseconds without overflowing.
func monotonicNanos() int64 {
	var ticks int64
	if err := windows.QueryPerformanceCounter(&ticks); err != nil {
		panic("event: QueryPerformanceCounter failed: " + err.Error())
	}

	freq := qpcFrequency()
	sec := ticks / freq
	rem := ticks % freq

	return sec*1e9 + rem*1e9/freq
}
