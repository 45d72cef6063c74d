package govern

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mediaheat/heatwatch/internal/metrics"
	"github.com/mediaheat/heatwatch/internal/persistence"
)

// DefaultOpenFor is the circuit cool-down applied when a worker reports an
// error without choosing its own window.
const DefaultOpenFor = 10 * time.Minute

// HealthTracker is the durable per-source circuit breaker. Workers check
// IsOpen before starting and report RecordOK/RecordError after finishing;
// retries stay the worker's responsibility, bounded by the cool-down.
//
// Every method degrades instead of propagating store failures: health
// bookkeeping must never take the pipeline down with it.
type HealthTracker struct {
	health persistence.HealthRepo
	now    func() time.Time
}

// NewHealthTracker creates a tracker over the given health repository.
func NewHealthTracker(health persistence.HealthRepo) *HealthTracker {
	return &HealthTracker{health: health, now: func() time.Time { return time.Now().UTC() }}
}

// RecordOK clears the error streak and closes any open circuit.
func (t *HealthTracker) RecordOK(ctx context.Context, source string) {
	if err := t.health.RecordOK(ctx, source, t.now()); err != nil {
		log.Warn().Err(err).Str("source", source).Msg("failed to record source ok")
		return
	}
	metrics.CircuitOpen.WithLabelValues(source).Set(0)
}

// RecordError increments the error streak and opens the circuit for at
// least openFor; an already longer-open circuit is never shortened.
func (t *HealthTracker) RecordError(ctx context.Context, source string, openFor time.Duration) {
	if openFor <= 0 {
		openFor = DefaultOpenFor
	}
	now := t.now()
	if err := t.health.RecordError(ctx, source, now, now.Add(openFor)); err != nil {
		log.Warn().Err(err).Str("source", source).Msg("failed to record source error")
		return
	}
	metrics.CircuitOpen.WithLabelValues(source).Set(1)
}

// IsOpen reports whether the source's circuit is currently open. Unknown
// sources and store failures read as closed so a broken health table cannot
// block all ingestion.
func (t *HealthTracker) IsOpen(ctx context.Context, source string) bool {
	h, err := t.health.Get(ctx, source)
	if err != nil {
		log.Warn().Err(err).Str("source", source).Msg("failed to read source health")
		return false
	}
	if h == nil || h.CircuitOpenUntil == nil {
		return false
	}
	return t.now().Before(*h.CircuitOpenUntil)
}
