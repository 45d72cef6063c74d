// Package ingest is the validated write boundary for collector workers.
// Workers normalize whatever their upstream returns into (entity, source,
// metric, ts, value) tuples; everything else about a source lives outside
// the core.
package ingest

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mediaheat/heatwatch/internal/govern"
	"github.com/mediaheat/heatwatch/internal/metrics"
	"github.com/mediaheat/heatwatch/internal/persistence"
)

// Known signal sources.
const (
	SourceReddit       = "reddit"
	SourceTrends       = "trends"
	SourceWiki         = "wiki"
	SourceGDELT        = "gdelt_gkg"
	SourceTikTokSearch = "tt_search"
	SourceTikTokCC     = "tt_cc"
	SourceApifyTikTok  = "apify_tiktok"
	SourceScrapeNews   = "scrape_news"
	SourceYouTube      = "youtube"
)

// SourceGoogleNews feeds trade mentions, not signals.
const SourceGoogleNews = "google_news_search"

// registry is the closed set of accepted (source, metric) pairs. A worker
// emitting anything outside it has a bug; the row is rejected rather than
// silently polluting downstream series.
var registry = map[string]map[string]struct{}{
	SourceReddit: {"mentions": {}},
	SourceTrends: {"interest": {}},
	SourceWiki:   {"views": {}},
	SourceGDELT:  {"gkg_mentions": {}, "gkg_tone_avg": {}},
	SourceTikTokSearch: {
		"hits_24h":           {},
		"unique_authors_24h": {},
		"view_vel_median":    {},
		"eng_ratio_median":   {},
	},
	SourceTikTokCC:    {"hashtag_score": {}, "momentum": {}},
	SourceApifyTikTok: {"hits": {}},
	SourceScrapeNews:  {"mentions": {}},
	SourceYouTube: {
		"view_count":      {},
		"like_count":      {},
		"comment_count":   {},
		"video_count":     {},
		"unique_channels": {},
		"engagement_rate": {},
	},
}

// KnownMetric reports whether (source, metric) is an accepted pair.
func KnownMetric(source, metric string) bool {
	ms, ok := registry[source]
	if !ok {
		return false
	}
	_, ok = ms[metric]
	return ok
}

// Sources returns the registered signal source names.
func Sources() []string {
	out := make([]string, 0, len(registry))
	for s := range registry {
		out = append(out, s)
	}
	return out
}

// Writer validates and persists collector output. It also carries the
// per-source durable circuit contract workers consult between polls.
type Writer struct {
	store   *persistence.Store
	tracker *govern.HealthTracker
	auditor *govern.Auditor
	now     func() time.Time
}

// NewWriter creates a writer over the given store.
func NewWriter(store *persistence.Store) *Writer {
	return &Writer{
		store:   store,
		tracker: govern.NewHealthTracker(store.Health),
		auditor: govern.NewAuditor(store.Audit),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// EnsureEntity upserts the entity by canonical name and returns its id.
// Aliases merge by union, so repeated calls from different workers only
// ever grow what is known about the entity.
func (w *Writer) EnsureEntity(ctx context.Context, name, entityType string, aliases []string) (int64, error) {
	if name == "" {
		return 0, fmt.Errorf("entity name must not be empty")
	}
	id, err := w.store.Entities.Upsert(ctx, persistence.Entity{
		Name:    name,
		Type:    entityType,
		Aliases: aliases,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to upsert entity %q: %w", name, err)
	}
	return id, nil
}

// WriteSignal validates and persists one measurement. Unknown
// (source, metric) pairs and non-finite values are rejected, counted, and
// audited; duplicate (entity, source, metric, ts) rows are silent no-ops.
func (w *Writer) WriteSignal(ctx context.Context, s persistence.Signal) error {
	if !KnownMetric(s.Source, s.Metric) {
		metrics.SignalsRejected.WithLabelValues(s.Source, "unknown_key").Inc()
		w.auditor.Event(ctx, s.Source, "signal_rejected", "warn", nil, map[string]interface{}{
			"metric":    s.Metric,
			"entity_id": s.EntityID,
		})
		log.Warn().Str("source", s.Source).Str("metric", s.Metric).Int64("entity_id", s.EntityID).
			Msg("rejected signal with unknown source/metric pair")
		return fmt.Errorf("unknown signal key %s/%s", s.Source, s.Metric)
	}
	if math.IsNaN(s.Value) || math.IsInf(s.Value, 0) {
		metrics.SignalsRejected.WithLabelValues(s.Source, "non_finite").Inc()
		return fmt.Errorf("signal %s/%s for entity %d has non-finite value", s.Source, s.Metric, s.EntityID)
	}
	if s.Timestamp.IsZero() {
		s.Timestamp = w.now()
	}

	if err := w.store.Signals.Insert(ctx, s); err != nil {
		return fmt.Errorf("failed to insert signal %s/%s: %w", s.Source, s.Metric, err)
	}
	metrics.SignalsWritten.WithLabelValues(s.Source).Inc()
	return nil
}

// WriteBatch persists a slice of signals, continuing past per-row
// rejections. It returns the number written and the first store error.
func (w *Writer) WriteBatch(ctx context.Context, signals []persistence.Signal) (int, error) {
	written := 0
	for _, s := range signals {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		if err := w.WriteSignal(ctx, s); err != nil {
			if ctx.Err() != nil {
				return written, err
			}
			continue
		}
		written++
	}
	return written, nil
}

// RecordTradeMention stores first trade-press coverage of an entity. First
// write wins per (entity, source); later sightings are no-ops.
func (w *Writer) RecordTradeMention(ctx context.Context, entityID int64, source string, seenAt time.Time) error {
	if seenAt.IsZero() {
		seenAt = w.now()
	}
	err := w.store.Mentions.Record(ctx, persistence.TradeMention{
		EntityID:    entityID,
		Source:      source,
		FirstSeenTS: seenAt,
	})
	if err != nil {
		return fmt.Errorf("failed to record trade mention: %w", err)
	}
	return nil
}

// SourceOpen reports whether the source's durable circuit is open. Workers
// check this before each poll cycle.
func (w *Writer) SourceOpen(ctx context.Context, source string) bool {
	return w.tracker.IsOpen(ctx, source)
}

// ReportOK closes the source circuit after a successful poll.
func (w *Writer) ReportOK(ctx context.Context, source string) {
	w.tracker.RecordOK(ctx, source)
}

// ReportError opens the source circuit for at least openFor.
func (w *Writer) ReportError(ctx context.Context, source string, openFor time.Duration) {
	w.tracker.RecordError(ctx, source, openFor)
}
