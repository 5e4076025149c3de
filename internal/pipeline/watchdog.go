package pipeline

import "runtime"

// MemoryWatchdog trips when the process heap approaches a configured
// ceiling. The orchestrator consults it between analyzers and after each
// yielded issue, trading report completeness for staying alive.
type MemoryWatchdog struct {
	ceiling uint64
}

// NewMemoryWatchdog builds a watchdog for limitMB megabytes, tripping at
// the given fraction of it. A non-positive limit disables the watchdog.
func NewMemoryWatchdog(limitMB int, fraction float64) *MemoryWatchdog {
	if limitMB <= 0 {
		return &MemoryWatchdog{}
	}
	if fraction <= 0 || fraction > 1 {
		fraction = 0.8
	}
	return &MemoryWatchdog{
		ceiling: uint64(float64(limitMB) * 1024 * 1024 * fraction),
	}
}

// Exceeded reports whether the heap allocation crossed the ceiling.
func (w *MemoryWatchdog) Exceeded() bool {
	if w.ceiling == 0 {
		return false
	}
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats.HeapAlloc > w.ceiling
}
