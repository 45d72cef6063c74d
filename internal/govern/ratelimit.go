// Package govern holds the shared resource-governance primitives every
// ingestion worker must go through: the distributed token bucket, the
// durable per-source circuit breaker, and the best-effort audit trail.
package govern

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/mediaheat/heatwatch/internal/metrics"
)

// RateLimiter is the non-blocking token bucket contract. Acquire returns
// whether n tokens were granted; denial is not an error, callers skip that
// unit of work for the cycle and retry on the next one.
type RateLimiter interface {
	Acquire(ctx context.Context, n int) bool
}

// BucketConfig describes one logical resource key, e.g. "reddit:fetch".
type BucketConfig struct {
	Key      string        `yaml:"key"`
	Rate     int           `yaml:"rate"`     // tokens added per interval
	Interval time.Duration `yaml:"interval"` // refill interval
	Burst    int           `yaml:"burst"`    // bucket capacity
}

func (c BucketConfig) normalized() BucketConfig {
	if c.Rate < 1 {
		c.Rate = 1
	}
	if c.Interval < time.Second {
		c.Interval = time.Minute
	}
	if c.Burst < 1 {
		c.Burst = c.Rate
	}
	return c
}

// LocalBucket is the in-process fallback limiter. It only coordinates
// workers inside one process, so a fleet degrades to per-worker-local
// limiting when the shared store is down — never to unbounded calls.
type LocalBucket struct {
	key     string
	limiter *rate.Limiter

	mu sync.Mutex
}

// NewLocalBucket creates an in-process token bucket.
func NewLocalBucket(cfg BucketConfig) *LocalBucket {
	cfg = cfg.normalized()
	perSecond := float64(cfg.Rate) / cfg.Interval.Seconds()
	return &LocalBucket{
		key:     cfg.Key,
		limiter: rate.NewLimiter(rate.Limit(perSecond), cfg.Burst),
	}
}

// Acquire grants n tokens when available. Never blocks.
func (b *LocalBucket) Acquire(_ context.Context, n int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.limiter.AllowN(time.Now(), n) {
		return true
	}
	metrics.RateLimitDenials.WithLabelValues(b.key).Inc()
	return false
}
