package queue

import (
	"math/rand"
	"time"
)

// Backoff returns the redelivery delay for the given 1-based attempt from a
// schedule, with +/- jitterPct jitter. Attempts past the end of the schedule
// reuse its last entry.
func Backoff(attempt int, schedule []time.Duration, jitterPct float64) time.Duration {
	if len(schedule) == 0 {
		schedule = []time.Duration{time.Second}
	}
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(schedule) {
		idx = len(schedule) - 1
	}
	base := schedule[idx]
	// jitter: +/- jitterPct
	j := 1 + (rand.Float64()*2-1)*jitterPct
	if j < 0.1 {
		j = 0.1
	}
	return time.Duration(float64(base) * j)
}
