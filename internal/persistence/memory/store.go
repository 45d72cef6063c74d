// Package memory provides an in-memory persistence.Store with the same
// conflict-resolution semantics as the postgres implementation. It backs
// component tests and lets the core run without a database.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mediaheat/heatwatch/internal/persistence"
)

// NewStore returns a fully wired in-memory store.
func NewStore() *persistence.Store {
	s := &state{
		entities: make(map[int64]persistence.Entity),
		byName:   make(map[string]int64),
		signals:  make(map[signalKey]float64),
		trend:    make(map[int64]*persistence.TrendState),
		mentions: make(map[int64]map[string]time.Time),
		health:   make(map[string]*persistence.SourceHealth),
	}
	return &persistence.Store{
		Entities: (*entityRepo)(s),
		Signals:  (*signalRepo)(s),
		Scores:   (*scoreRepo)(s),
		Trend:    (*trendRepo)(s),
		Mentions: (*mentionRepo)(s),
		Alerts:   (*alertRepo)(s),
		Health:   (*healthRepo)(s),
		Audit:    (*auditRepo)(s),
	}
}

type signalKey struct {
	entityID int64
	source   string
	metric   string
	ts       time.Time
}

type state struct {
	mu sync.Mutex

	entities map[int64]persistence.Entity
	byName   map[string]int64
	nextID   int64

	signals map[signalKey]float64
	scores  []persistence.Score

	trend    map[int64]*persistence.TrendState
	mentions map[int64]map[string]time.Time
	alerts   []persistence.Alert
	health   map[string]*persistence.SourceHealth
	audit    []persistence.AuditEvent
}

type entityRepo state
type signalRepo state
type scoreRepo state
type trendRepo state
type mentionRepo state
type alertRepo state
type healthRepo state
type auditRepo state

func (r *entityRepo) Upsert(_ context.Context, e persistence.Entity) (int64, error) {
	s := (*state)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byName[e.Name]; ok {
		existing := s.entities[id]
		existing.Aliases = unionAliases(existing.Aliases, e.Aliases)
		if e.WikiID != nil {
			existing.WikiID = e.WikiID
		}
		s.entities[id] = existing
		return id, nil
	}
	s.nextID++
	e.ID = s.nextID
	e.CreatedAt = time.Now().UTC()
	e.Aliases = unionAliases(nil, e.Aliases)
	s.entities[e.ID] = e
	s.byName[e.Name] = e.ID
	return e.ID, nil
}

func (r *entityRepo) Get(_ context.Context, id int64) (*persistence.Entity, error) {
	s := (*state)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[id]
	if !ok {
		return nil, nil
	}
	out := e
	return &out, nil
}

func (r *entityRepo) List(_ context.Context) ([]persistence.Entity, error) {
	s := (*state)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]persistence.Entity, 0, len(s.entities))
	for _, e := range s.entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func unionAliases(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, set := range [][]string{a, b} {
		for _, alias := range set {
			if !seen[alias] {
				seen[alias] = true
				out = append(out, alias)
			}
		}
	}
	return out
}

func (r *signalRepo) Insert(_ context.Context, sig persistence.Signal) error {
	s := (*state)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	key := signalKey{sig.EntityID, sig.Source, sig.Metric, sig.Timestamp.UTC()}
	if _, dup := s.signals[key]; dup {
		return nil
	}
	s.signals[key] = sig.Value
	return nil
}

func (r *signalRepo) Series(_ context.Context, entityID int64, source, metric string, since time.Time) ([]persistence.Point, error) {
	s := (*state)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []persistence.Point
	for k, v := range s.signals {
		if k.entityID == entityID && k.source == source && k.metric == metric && !k.ts.Before(since) {
			out = append(out, persistence.Point{Timestamp: k.ts, Value: v})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (r *signalRepo) MetricSeries(_ context.Context, entityID int64, sources []string, since time.Time) (map[string]map[string][]persistence.Point, error) {
	s := (*state)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := make(map[string]bool, len(sources))
	for _, src := range sources {
		wanted[src] = true
	}
	out := make(map[string]map[string][]persistence.Point)
	for k, v := range s.signals {
		if k.entityID != entityID || !wanted[k.source] || k.ts.Before(since) {
			continue
		}
		byMetric, ok := out[k.source]
		if !ok {
			byMetric = make(map[string][]persistence.Point)
			out[k.source] = byMetric
		}
		byMetric[k.metric] = append(byMetric[k.metric], persistence.Point{Timestamp: k.ts, Value: v})
	}
	for _, byMetric := range out {
		for metric := range byMetric {
			pts := byMetric[metric]
			sort.Slice(pts, func(i, j int) bool { return pts[i].Timestamp.Before(pts[j].Timestamp) })
			byMetric[metric] = pts
		}
	}
	return out, nil
}

func (r *signalRepo) HasRecent(_ context.Context, entityID int64, sources []string, since time.Time) (bool, error) {
	s := (*state)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.signals {
		if k.entityID != entityID || k.ts.Before(since) {
			continue
		}
		for _, src := range sources {
			if k.source == src {
				return true, nil
			}
		}
	}
	return false, nil
}

func (r *scoreRepo) Insert(_ context.Context, sc persistence.Score) error {
	s := (*state)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	// Scores are keyed (entity_id, ts) in the schema; keep the same
	// constraint here so a colliding append fails loudly instead of
	// creating a row postgres would reject.
	for _, existing := range s.scores {
		if existing.EntityID == sc.EntityID && existing.Timestamp.Equal(sc.Timestamp) {
			return fmt.Errorf("duplicate score for entity %d at %s", sc.EntityID, sc.Timestamp.Format(time.RFC3339))
		}
	}
	s.scores = append(s.scores, sc)
	return nil
}

func (r *scoreRepo) Latest(_ context.Context, entityID int64) (*persistence.Score, error) {
	s := (*state)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *persistence.Score
	for i := range s.scores {
		sc := s.scores[i]
		if sc.EntityID != entityID {
			continue
		}
		if latest == nil || sc.Timestamp.After(latest.Timestamp) {
			cp := sc
			latest = &cp
		}
	}
	return latest, nil
}

func (r *scoreRepo) LatestAll(_ context.Context, since time.Time) ([]persistence.Score, error) {
	s := (*state)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	latest := make(map[int64]persistence.Score)
	for _, sc := range s.scores {
		if sc.Timestamp.Before(since) {
			continue
		}
		cur, ok := latest[sc.EntityID]
		if !ok || sc.Timestamp.After(cur.Timestamp) {
			latest[sc.EntityID] = sc
		}
	}
	out := make([]persistence.Score, 0, len(latest))
	for _, sc := range latest {
		out = append(out, sc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Heat > out[j].Heat })
	return out, nil
}

func (r *scoreRepo) PeakTS(_ context.Context, entityID int64, since time.Time) (*time.Time, error) {
	s := (*state)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *persistence.Score
	for i := range s.scores {
		sc := s.scores[i]
		if sc.EntityID != entityID || sc.Timestamp.Before(since) {
			continue
		}
		if best == nil || sc.Heat > best.Heat ||
			(sc.Heat == best.Heat && sc.Timestamp.After(best.Timestamp)) {
			cp := sc
			best = &cp
		}
	}
	if best == nil {
		return nil, nil
	}
	ts := best.Timestamp
	return &ts, nil
}

func (r *trendRepo) RecordPass(_ context.Context, entityID int64, ts time.Time) (int, error) {
	s := (*state)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.trend[entityID]
	if !ok {
		st = &persistence.TrendState{EntityID: entityID}
		s.trend[entityID] = st
	}
	if st.LastGatePassTS != nil && ts.After(*st.LastGatePassTS) {
		st.ConsecutivePasses++
	} else {
		st.ConsecutivePasses = 1
	}
	t := ts
	st.LastGatePassTS = &t
	return st.ConsecutivePasses, nil
}

func (r *trendRepo) RecordFail(_ context.Context, entityID int64) error {
	s := (*state)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.trend[entityID]
	if !ok {
		st = &persistence.TrendState{EntityID: entityID}
		s.trend[entityID] = st
	}
	st.ConsecutivePasses = 0
	return nil
}

func (r *trendRepo) Get(_ context.Context, entityID int64) (*persistence.TrendState, error) {
	s := (*state)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.trend[entityID]
	if !ok {
		return nil, nil
	}
	cp := *st
	return &cp, nil
}

func (r *trendRepo) MarkAlerted(_ context.Context, entityID int64, ts time.Time, heat float64) error {
	s := (*state)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.trend[entityID]
	if !ok {
		st = &persistence.TrendState{EntityID: entityID}
		s.trend[entityID] = st
	}
	t := ts
	h := heat
	st.LastAlertTS = &t
	st.LastAlertHeat = &h
	if heat > st.PriorPeakHeat {
		st.PriorPeakHeat = heat
	}
	return nil
}

func (r *mentionRepo) Record(_ context.Context, m persistence.TradeMention) error {
	s := (*state)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	bySource, ok := s.mentions[m.EntityID]
	if !ok {
		bySource = make(map[string]time.Time)
		s.mentions[m.EntityID] = bySource
	}
	if _, exists := bySource[m.Source]; !exists {
		bySource[m.Source] = m.FirstSeenTS
	}
	return nil
}

func (r *mentionRepo) FirstMention(_ context.Context, entityID int64) (*time.Time, error) {
	s := (*state)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	bySource, ok := s.mentions[entityID]
	if !ok || len(bySource) == 0 {
		return nil, nil
	}
	var min time.Time
	for _, ts := range bySource {
		if min.IsZero() || ts.Before(min) {
			min = ts
		}
	}
	return &min, nil
}

func (r *alertRepo) Insert(_ context.Context, a persistence.Alert) error {
	s := (*state)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entities[a.EntityID]; ok && a.EntityName == "" {
		a.EntityName = e.Name
	}
	s.alerts = append(s.alerts, a)
	return nil
}

func (r *alertRepo) Recent(_ context.Context, limit int) ([]persistence.Alert, error) {
	s := (*state)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]persistence.Alert, len(s.alerts))
	copy(out, s.alerts)
	sort.Slice(out, func(i, j int) bool { return out[i].AlertTS.After(out[j].AlertTS) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *healthRepo) RecordOK(_ context.Context, source string, at time.Time) error {
	s := (*state)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.health[source]
	if !ok {
		h = &persistence.SourceHealth{Source: source}
		s.health[source] = h
	}
	t := at
	h.LastOK = &t
	h.ConsecutiveErrors = 0
	h.CircuitOpenUntil = nil
	return nil
}

func (r *healthRepo) RecordError(_ context.Context, source string, at, openUntil time.Time) error {
	s := (*state)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.health[source]
	if !ok {
		h = &persistence.SourceHealth{Source: source}
		s.health[source] = h
	}
	t := at
	h.LastError = &t
	h.ConsecutiveErrors++
	if h.CircuitOpenUntil == nil || openUntil.After(*h.CircuitOpenUntil) {
		u := openUntil
		h.CircuitOpenUntil = &u
	}
	return nil
}

func (r *healthRepo) Get(_ context.Context, source string) (*persistence.SourceHealth, error) {
	s := (*state)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.health[source]
	if !ok {
		return nil, nil
	}
	cp := *h
	return &cp, nil
}

func (r *healthRepo) List(_ context.Context) ([]persistence.SourceHealth, error) {
	s := (*state)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]persistence.SourceHealth, 0, len(s.health))
	for _, h := range s.health {
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out, nil
}

func (r *auditRepo) Insert(_ context.Context, e persistence.AuditEvent) error {
	s := (*state)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, e)
	return nil
}

// AuditEvents returns a copy of the recorded audit trail for assertions.
func AuditEvents(store *persistence.Store) []persistence.AuditEvent {
	r, ok := store.Audit.(*auditRepo)
	if !ok {
		return nil
	}
	s := (*state)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]persistence.AuditEvent, len(s.audit))
	copy(out, s.audit)
	return out
}
