package govern

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mediaheat/heatwatch/internal/persistence"
)

// auditAttempts bounds the write retries; after that the event is dropped.
const auditAttempts = 2

// Auditor appends diagnostic events, fire-and-forget: the result is ignored
// by callers and a failing audit store can never fail the operation that
// produced the event.
type Auditor struct {
	audit persistence.AuditRepo
	now   func() time.Time
}

// NewAuditor creates an auditor over the given repository.
func NewAuditor(audit persistence.AuditRepo) *Auditor {
	return &Auditor{audit: audit, now: func() time.Time { return time.Now().UTC() }}
}

// Event records one audit row with a bounded retry. Safe no-op on failure.
func (a *Auditor) Event(ctx context.Context, source, event, level string, status *int, extra map[string]interface{}) {
	row := persistence.AuditEvent{
		Timestamp: a.now(),
		Source:    source,
		Event:     event,
		Level:     level,
		Status:    status,
		Extra:     extra,
	}
	var err error
	for attempt := 0; attempt < auditAttempts; attempt++ {
		if err = a.audit.Insert(ctx, row); err == nil {
			return
		}
	}
	log.Debug().Err(err).Str("source", source).Str("event", event).Msg("audit write dropped")
}
