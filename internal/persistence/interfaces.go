package persistence

import (
	"context"
	"time"
)

// Entity is a tracked subject (person, title, franchise) with a canonical
// name and alias set. Identity key is the case-sensitive name; aliases grow
// by union on upsert and entities are never deleted.
type Entity struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Type      string    `json:"type" db:"type"`
	Category  string    `json:"category,omitempty" db:"category"`
	Aliases   []string  `json:"aliases" db:"aliases"`
	WikiID    *string   `json:"wiki_id,omitempty" db:"wiki_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Signal is one normalized measurement from one source about one entity at
// one time. (entity_id, source, metric, ts) is the idempotency key.
type Signal struct {
	EntityID  int64     `json:"entity_id" db:"entity_id"`
	Source    string    `json:"source" db:"source"`
	Metric    string    `json:"metric" db:"metric"`
	Timestamp time.Time `json:"ts" db:"ts"`
	Value     float64   `json:"value" db:"value"`
}

// Point is a single (ts, value) observation from an ordered signal series.
type Point struct {
	Timestamp time.Time `json:"ts" db:"ts"`
	Value     float64   `json:"value" db:"value"`
}

// Score is one scoring-pass result for one entity. Rows are append-only;
// corrections and enrichment folds are written as new rows, never updates.
// The xplat column doubles as the platform-spread component.
type Score struct {
	EntityID  int64     `json:"entity_id" db:"entity_id"`
	Timestamp time.Time `json:"ts" db:"ts"`
	VelocityZ float64   `json:"velocity_z" db:"velocity_z"`
	Accel     float64   `json:"accel" db:"accel"`
	Spread    float64   `json:"spread" db:"xplat"`
	Affect    float64   `json:"affect" db:"affect"`
	Novelty   float64   `json:"novelty" db:"novelty"`
	EtFit     float64   `json:"et_fit" db:"et_fit"`
	Tentpole  float64   `json:"tentpole" db:"tentpole"`
	Decay     float64   `json:"decay" db:"decay"`
	Risk      float64   `json:"risk" db:"risk"`
	Heat      float64   `json:"heat" db:"heat"`
	Reasons   string    `json:"reasons" db:"reasons"`
}

// TrendState is the per-entity gate memory. One mutable row per entity,
// only ever changed through atomic upserts.
type TrendState struct {
	EntityID          int64      `json:"entity_id" db:"entity_id"`
	LastGatePassTS    *time.Time `json:"last_gate_pass_ts,omitempty" db:"last_gate_pass_ts"`
	ConsecutivePasses int        `json:"consecutive_passes" db:"consecutive_passes"`
	LastAlertTS       *time.Time `json:"last_alert_ts,omitempty" db:"last_alert_ts"`
	LastAlertHeat     *float64   `json:"last_alert_heat,omitempty" db:"last_alert_heat"`
	PriorPeakHeat     float64    `json:"prior_peak_heat" db:"prior_peak_heat"`
}

// Alert is one dispatched alert. Immutable once written.
type Alert struct {
	ID              string    `json:"id" db:"id"`
	EntityID        int64     `json:"entity_id" db:"entity_id"`
	EntityName      string    `json:"entity_name,omitempty" db:"entity_name"`
	AlertTS         time.Time `json:"alert_ts" db:"alert_ts"`
	Heat            float64   `json:"heat" db:"heat"`
	Reasons         string    `json:"reasons" db:"reasons"`
	PreTrade        bool      `json:"pre_trade" db:"pre_trade"`
	LeadTimeMinutes *int      `json:"lead_time_minutes,omitempty" db:"lead_time_minutes"`
}

// TradeMention records the first time trade press covered an entity,
// unique per (entity_id, source), first write wins.
type TradeMention struct {
	EntityID    int64     `json:"entity_id" db:"entity_id"`
	Source      string    `json:"source" db:"source"`
	FirstSeenTS time.Time `json:"first_seen_ts" db:"first_seen_ts"`
}

// SourceHealth is the durable circuit-breaker state for one ingestion source.
type SourceHealth struct {
	Source            string     `json:"source" db:"source"`
	LastOK            *time.Time `json:"last_ok,omitempty" db:"last_ok"`
	LastError         *time.Time `json:"last_error,omitempty" db:"last_error"`
	ConsecutiveErrors int        `json:"consecutive_errors" db:"consecutive_errors"`
	CircuitOpenUntil  *time.Time `json:"circuit_open_until,omitempty" db:"circuit_open_until"`
}

// AuditEvent is a best-effort diagnostic row. Writes must never fail callers.
type AuditEvent struct {
	Timestamp time.Time              `json:"ts" db:"ts"`
	Source    string                 `json:"source" db:"source"`
	Event     string                 `json:"event" db:"event"`
	Level     string                 `json:"level" db:"level"`
	Status    *int                   `json:"status,omitempty" db:"status"`
	Extra     map[string]interface{} `json:"extra,omitempty" db:"extra"`
}

// EntityRepo manages the entity catalog.
type EntityRepo interface {
	// Upsert creates or refreshes an entity by name and returns its id.
	// Aliases are merged (set union), never replaced with a smaller set.
	Upsert(ctx context.Context, e Entity) (int64, error)

	Get(ctx context.Context, id int64) (*Entity, error)
	List(ctx context.Context) ([]Entity, error)
}

// SignalRepo is the append-only signal store.
type SignalRepo interface {
	// Insert writes one signal row. Duplicate (entity, source, metric, ts)
	// inserts are silent no-ops.
	Insert(ctx context.Context, s Signal) error

	// Series returns the ordered (ts, value) sequence for one
	// (source, metric) pair since the given time.
	Series(ctx context.Context, entityID int64, source, metric string, since time.Time) ([]Point, error)

	// MetricSeries returns source -> metric -> ordered points for the given
	// sources since the given time.
	MetricSeries(ctx context.Context, entityID int64, sources []string, since time.Time) (map[string]map[string][]Point, error)

	// HasRecent reports whether any signal from any of the sources exists
	// at or after the given time.
	HasRecent(ctx context.Context, entityID int64, sources []string, since time.Time) (bool, error)
}

// ScoreRepo is the append-only score history.
type ScoreRepo interface {
	Insert(ctx context.Context, s Score) error

	// Latest returns the newest score row for the entity, or nil.
	Latest(ctx context.Context, entityID int64) (*Score, error)

	// LatestAll returns the newest score row per entity with ts >= since.
	LatestAll(ctx context.Context, since time.Time) ([]Score, error)

	// PeakTS returns the timestamp of the highest-heat row since the given
	// time, or nil when the entity has no rows in the window.
	PeakTS(ctx context.Context, entityID int64, since time.Time) (*time.Time, error)
}

// TrendRepo owns the per-entity gate state machine rows. RecordPass and
// RecordFail must be single atomic round trips: concurrent evaluations for
// the same entity must never double-increment the pass counter.
type TrendRepo interface {
	// RecordPass registers a gate-passing evaluation at ts and returns the
	// post-update consecutive pass count. The count increments only when ts
	// is strictly newer than the stored last pass timestamp, otherwise it
	// restarts at 1.
	RecordPass(ctx context.Context, entityID int64, ts time.Time) (int, error)

	// RecordFail resets the consecutive pass count to zero.
	RecordFail(ctx context.Context, entityID int64) error

	Get(ctx context.Context, entityID int64) (*TrendState, error)

	// MarkAlerted stores the last-alert memory and raises prior_peak_heat
	// to at least the alerted heat (GREATEST semantics).
	MarkAlerted(ctx context.Context, entityID int64, ts time.Time, heat float64) error
}

// MentionRepo tracks first trade-press coverage per entity and source.
type MentionRepo interface {
	// Record stores the mention unless one already exists for the
	// (entity, source) pair (first write wins).
	Record(ctx context.Context, m TradeMention) error

	// FirstMention returns the earliest first_seen_ts across sources, or nil.
	FirstMention(ctx context.Context, entityID int64) (*time.Time, error)
}

// AlertRepo persists dispatched alerts.
type AlertRepo interface {
	Insert(ctx context.Context, a Alert) error
	Recent(ctx context.Context, limit int) ([]Alert, error)
}

// HealthRepo is the durable per-source circuit state.
type HealthRepo interface {
	// RecordOK clears consecutive errors and any open circuit window.
	RecordOK(ctx context.Context, source string, at time.Time) error

	// RecordError increments consecutive errors and extends the open window
	// to at least openUntil (never shortens an existing window).
	RecordError(ctx context.Context, source string, at, openUntil time.Time) error

	Get(ctx context.Context, source string) (*SourceHealth, error)
	List(ctx context.Context) ([]SourceHealth, error)
}

// AuditRepo appends diagnostic events.
type AuditRepo interface {
	Insert(ctx context.Context, e AuditEvent) error
}

// Store bundles the repositories behind one injectable handle. Every
// component takes a *Store so tests can swap in the in-memory implementation.
type Store struct {
	Entities EntityRepo
	Signals  SignalRepo
	Scores   ScoreRepo
	Trend    TrendRepo
	Mentions MentionRepo
	Alerts   AlertRepo
	Health   HealthRepo
	Audit    AuditRepo
}
