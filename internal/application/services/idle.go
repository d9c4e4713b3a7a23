package services

import (
	"context"
	"sync/atomic"
	"time"
)

// lastSeen is the time an API read last touched a feed
type lastSeen struct {
	nanos atomic.Int64
}

func (l *lastSeen) touch(now time.Time) {
	l.nanos.Store(now.UnixNano())
}

func (l *lastSeen) since(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, l.nanos.Load()))
}

// leastRecent returns the key of m touched longest ago
func leastRecent[K comparable, V any](m map[K]V, seen func(V) *lastSeen) (K, bool) {
	var (
		oldest K
		at     int64
		found  bool
	)
	for k, v := range m {
		if n := seen(v).nanos.Load(); !found || n < at {
			oldest, at, found = k, n, true
		}
	}
	return oldest, found
}

// idleKeys returns the keys of m not touched for longer than timeout
func idleKeys[K comparable, V any](m map[K]V, seen func(V) *lastSeen, now time.Time, timeout time.Duration) []K {
	var idle []K
	for k, v := range m {
		if seen(v).since(now) > timeout {
			idle = append(idle, k)
		}
	}
	return idle
}

// sweepIdle calls evict at half the idle timeout until ctx is done
func sweepIdle(ctx context.Context, timeout time.Duration, evict func(now time.Time)) {
	interval := timeout / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			evict(now)
		}
	}
}
