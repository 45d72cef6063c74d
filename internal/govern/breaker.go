package govern

import (
	"time"

	"github.com/sony/gobreaker"
)

// NewDeliveryBreaker wraps an outbound transport (the Slack webhook) in an
// in-process circuit breaker. This complements the durable SourceHealth
// circuit: delivery has no ingestion source row, but a webhook that starts
// timing out should stop being hammered within the process immediately.
func NewDeliveryBreaker(name string) *gobreaker.CircuitBreaker {
	settings := gobreaker.Settings{
		Name:     name,
		Interval: 60 * time.Second,
		Timeout:  60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}
	return gobreaker.NewCircuitBreaker(settings)
}
