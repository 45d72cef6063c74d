// Package gate implements the persistent trend gate: the per-entity state
// machine that turns a stream of score evaluations into alert candidates,
// with persistence, debounce, reboost and trade-press suppression.
package gate

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mediaheat/heatwatch/internal/metrics"
	"github.com/mediaheat/heatwatch/internal/persistence"
)

// Config holds the gate thresholds. All of them are overridable from the
// top-level configuration.
type Config struct {
	// VelGate and SpreadGate are the minimums a score evaluation must meet
	// to count as a gate pass.
	VelGate    float64 `yaml:"vel_gate"`
	SpreadGate float64 `yaml:"spread_gate"`

	// PersistPolls is how many consecutive passing polls make an entity
	// alert-eligible.
	PersistPolls int `yaml:"persist_polls"`

	// Debounce suppresses re-alerts inside the window unless current heat
	// reaches last alert heat times ReboostFactor.
	Debounce      time.Duration `yaml:"debounce"`
	ReboostFactor float64       `yaml:"reboost_factor"`

	// TradeSuppressAfter: once trade press has covered the entity for
	// longer than this, alerts below the historical peak are stale news.
	TradeSuppressAfter time.Duration `yaml:"trade_suppress_after"`

	// ScoreWindow bounds how old a "latest" score row may be to be
	// evaluated at all.
	ScoreWindow time.Duration `yaml:"score_window"`
}

// DefaultConfig returns the production gate thresholds.
func DefaultConfig() Config {
	return Config{
		VelGate:            2.5,
		SpreadGate:         2.0 / 3.0,
		PersistPolls:       2,
		Debounce:           6 * time.Hour,
		ReboostFactor:      1.3,
		TradeSuppressAfter: 24 * time.Hour,
		ScoreWindow:        2 * time.Hour,
	}
}

// Candidate is an entity that survived gating and is cleared for dispatch.
type Candidate struct {
	EntityID int64             `json:"entity_id"`
	Name     string            `json:"name"`
	Heat     float64           `json:"heat"`
	Passes   int               `json:"passes"`
	Score    persistence.Score `json:"score"`
}

// Evaluator drives the trend gate over the latest scores. It holds no state
// of its own; all gate memory lives in the trend_state rows behind atomic
// upserts, so concurrent evaluations cannot double-count.
type Evaluator struct {
	store *persistence.Store
	cfg   Config
	now   func() time.Time
}

// NewEvaluator creates a gate evaluator over the given store.
func NewEvaluator(store *persistence.Store, cfg Config) *Evaluator {
	if cfg.PersistPolls == 0 {
		cfg = DefaultConfig()
	}
	return &Evaluator{store: store, cfg: cfg, now: func() time.Time { return time.Now().UTC() }}
}

// Evaluate runs one alert-evaluation poll: updates every entity's gate state
// from its latest score, collects entities whose post-update consecutive
// passes reach the persistence threshold, applies debounce and trade-mention
// suppression, and returns the survivors ranked by heat, truncated to limit.
func (g *Evaluator) Evaluate(ctx context.Context, limit int) ([]Candidate, error) {
	scores, err := g.store.Scores.LatestAll(ctx, g.now().Add(-g.cfg.ScoreWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to load latest scores: %w", err)
	}

	var candidates []Candidate
	for _, sc := range scores {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cand, err := g.evaluateOne(ctx, sc)
		if err != nil {
			log.Warn().Err(err).Int64("entity_id", sc.EntityID).Msg("gate evaluation failed, skipping entity")
			continue
		}
		if cand != nil {
			candidates = append(candidates, *cand)
		}
	}

	admitted, err := g.filter(ctx, candidates)
	if err != nil {
		return nil, err
	}

	sort.Slice(admitted, func(i, j int) bool { return admitted[i].Heat > admitted[j].Heat })
	if limit > 0 && len(admitted) > limit {
		admitted = admitted[:limit]
	}
	return admitted, nil
}

// evaluateOne updates one entity's gate state and returns it as a candidate
// when the post-update consecutive passes reach the threshold.
func (g *Evaluator) evaluateOne(ctx context.Context, sc persistence.Score) (*Candidate, error) {
	passes := sc.VelocityZ >= g.cfg.VelGate && sc.Spread >= g.cfg.SpreadGate
	if !passes {
		metrics.GateEvaluations.WithLabelValues("fail").Inc()
		if err := g.store.Trend.RecordFail(ctx, sc.EntityID); err != nil {
			return nil, fmt.Errorf("failed to reset gate state: %w", err)
		}
		return nil, nil
	}

	metrics.GateEvaluations.WithLabelValues("pass").Inc()
	consecutive, err := g.store.Trend.RecordPass(ctx, sc.EntityID, sc.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("failed to record gate pass: %w", err)
	}
	if consecutive < g.cfg.PersistPolls {
		return nil, nil
	}

	ent, err := g.store.Entities.Get(ctx, sc.EntityID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve entity: %w", err)
	}
	if ent == nil {
		return nil, fmt.Errorf("score references unknown entity %d", sc.EntityID)
	}

	return &Candidate{
		EntityID: sc.EntityID,
		Name:     ent.Name,
		Heat:     sc.Heat,
		Passes:   consecutive,
		Score:    sc,
	}, nil
}

func (g *Evaluator) filter(ctx context.Context, candidates []Candidate) ([]Candidate, error) {
	var out []Candidate
	for _, cand := range candidates {
		blocked, reason, err := g.blocked(ctx, cand.EntityID, cand.Heat)
		if err != nil {
			log.Warn().Err(err).Int64("entity_id", cand.EntityID).Msg("suppression check failed, skipping entity")
			continue
		}
		if blocked {
			metrics.Alerts.WithLabelValues(reason).Inc()
			log.Debug().
				Int64("entity_id", cand.EntityID).
				Str("entity", cand.Name).
				Str("reason", reason).
				Float64("heat", cand.Heat).
				Msg("alert candidate suppressed")
			continue
		}
		out = append(out, cand)
	}
	return out, nil
}

// blocked applies debounce and trade-mention aging. The returned reason is
// "debounced" or "suppressed" when blocked.
func (g *Evaluator) blocked(ctx context.Context, entityID int64, heat float64) (bool, string, error) {
	now := g.now()

	st, err := g.store.Trend.Get(ctx, entityID)
	if err != nil {
		return false, "", fmt.Errorf("failed to load trend state: %w", err)
	}

	var priorPeak float64
	if st != nil {
		priorPeak = st.PriorPeakHeat

		// Debounce: a re-alert inside the window needs a meaningfully
		// larger spike, not merely sustained heat.
		if st.LastAlertTS != nil && now.Sub(*st.LastAlertTS) < g.cfg.Debounce {
			if st.LastAlertHeat == nil || heat < *st.LastAlertHeat*g.cfg.ReboostFactor {
				return true, "debounced", nil
			}
		}
	}

	firstMention, err := g.store.Mentions.FirstMention(ctx, entityID)
	if err != nil {
		return false, "", fmt.Errorf("failed to load trade mentions: %w", err)
	}
	if firstMention != nil && now.Sub(*firstMention) > g.cfg.TradeSuppressAfter && heat < priorPeak {
		return true, "suppressed", nil
	}

	return false, "", nil
}
