package watcher

import (
	"math/rand/v2"
	"time"
)

const defaultBaseDelay = time.Second

// backoff returns the wait before reconnect attempt n (starting at 1):
// base doubled per attempt, capped at limit, plus up to 50% jitter.
func backoff(n int, base, limit time.Duration) time.Duration {
	if n < 1 {
		n = 1
	}
	d := base
	for i := 1; i < n && d < limit; i++ {
		d *= 2
	}
	if d > limit {
		d = limit
	}
	return d + time.Duration(rand.Int64N(int64(d/2)+1))
}
