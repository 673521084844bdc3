// Package globaltime is the process clock. Every timestamp the aggregator
// persists goes through it so tests can pin time.
package globaltime

import (
	"sync"
	"time"
)

var (
	mu      sync.RWMutex
	nowFunc = time.Now
)

func Now() time.Time {
	mu.RLock()
	defer mu.RUnlock()
	return nowFunc()
}

// UTC is Now normalized to UTC, truncated to the microsecond precision
// Postgres keeps for timestamptz.
func UTC() time.Time {
	return Now().UTC().Truncate(time.Microsecond)
}

// Freeze pins the clock at t until the returned restore func is called.
func Freeze(t time.Time) (restore func()) {
	mu.Lock()
	prev := nowFunc
	nowFunc = func() time.Time { return t }
	mu.Unlock()

	return func() {
		mu.Lock()
		nowFunc = prev
		mu.Unlock()
	}
}
