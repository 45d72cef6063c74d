package scoring

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mediaheat/heatwatch/internal/metrics"
	"github.com/mediaheat/heatwatch/internal/persistence"
)

// Scheme selects the composite formula used by the canonical scoring pass.
type Scheme string

const (
	SchemeLite Scheme = "lite"
	SchemeMVP  Scheme = "mvp"
)

// Config holds the scoring pass configuration. Zero values are filled in by
// DefaultConfig.
type Config struct {
	Scheme Scheme `yaml:"scheme"`

	// Windows, by series cadence.
	VelocityWindow time.Duration `yaml:"velocity_window"` // trends/wiki z-score baseline
	SpreadWindow   time.Duration `yaml:"spread_window"`   // recent-activity probe
	PeakWindow     time.Duration `yaml:"peak_window"`     // freshness peak lookback
	TikTokWindow   time.Duration `yaml:"tiktok_window"`   // platform-fold series

	XPlatThreshold   float64     `yaml:"xplat_threshold"`
	AffectVolFloor   float64     `yaml:"affect_volume_floor"`
	DefaultEtFit     float64     `yaml:"default_et_fit"`
	TikTokWeight     float64     `yaml:"tiktok_weight"`
	LiteWeights      LiteWeights `yaml:"lite_weights"`
	TentpoleCalendar []Tentpole  `yaml:"tentpoles"`
}

// DefaultConfig returns the production scoring configuration.
func DefaultConfig() Config {
	return Config{
		Scheme:         SchemeLite,
		VelocityWindow: 30 * 24 * time.Hour,
		SpreadWindow:   24 * time.Hour,
		PeakWindow:     48 * time.Hour,
		TikTokWindow:   30 * 24 * time.Hour,
		XPlatThreshold: 0.8,
		AffectVolFloor: 3.0,
		DefaultEtFit:   0.6,
		TikTokWeight:   0.2,
		LiteWeights:    DefaultLiteWeights(),
	}
}

// Source names as written by ingestion workers.
const (
	sourceTrends = "trends"
	sourceWiki   = "wiki"
	sourceReddit = "reddit"
	sourceGDELT  = "gdelt_gkg"

	metricTrendsInterest = "interest"
	metricWikiViews      = "views"
	metricGKGMentions    = "gkg_mentions"
	metricGKGToneAvg     = "gkg_tone_avg"
)

var tiktokSources = []string{SourceTikTokSearch, SourceTikTokCC, "apify_tiktok"}

// Failure records one entity that could not be scored in a pass.
type Failure struct {
	EntityID int64  `json:"entity_id"`
	Name     string `json:"name"`
	Reason   string `json:"reason"`
}

// BatchReport summarizes a pass. Per-entity failures never abort the batch.
type BatchReport struct {
	Total     int       `json:"total"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Failures  []Failure `json:"failures,omitempty"`
}

func (r *BatchReport) ok()            { r.Total++; r.Succeeded++ }
func (r *BatchReport) fail(f Failure) { r.Total++; r.Failed++; r.Failures = append(r.Failures, f) }

// Engine runs scoring passes over the entity catalog. All state lives in the
// injected store; the engine itself is stateless and safe for concurrent use.
type Engine struct {
	store *persistence.Store
	cfg   Config
	now   func() time.Time
}

// NewEngine creates a scoring engine over the given store.
func NewEngine(store *persistence.Store, cfg Config) *Engine {
	if cfg.VelocityWindow == 0 {
		cfg = DefaultConfig()
	}
	return &Engine{store: store, cfg: cfg, now: func() time.Time { return time.Now().UTC() }}
}

// Run executes one scoring pass with the configured scheme, writing one new
// score row per entity. Re-running before new signals arrive recomputes the
// same heat, so the pass is idempotent per period.
func (e *Engine) Run(ctx context.Context) (BatchReport, error) {
	started := e.now()
	defer func() {
		metrics.ScoringPassDuration.Observe(time.Since(started).Seconds())
	}()

	entities, err := e.store.Entities.List(ctx)
	if err != nil {
		return BatchReport{}, fmt.Errorf("failed to list entities: %w", err)
	}

	var report BatchReport
	for _, ent := range entities {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := e.scoreEntity(ctx, ent); err != nil {
			metrics.ScoredEntities.WithLabelValues("error").Inc()
			report.fail(Failure{EntityID: ent.ID, Name: ent.Name, Reason: err.Error()})
			log.Warn().Err(err).Int64("entity_id", ent.ID).Str("entity", ent.Name).Msg("scoring failed, skipping entity")
			continue
		}
		metrics.ScoredEntities.WithLabelValues("ok").Inc()
		report.ok()
	}

	log.Info().
		Str("scheme", string(e.cfg.Scheme)).
		Int("total", report.Total).
		Int("failed", report.Failed).
		Dur("elapsed", time.Since(started)).
		Msg("scoring pass complete")
	return report, nil
}

func (e *Engine) scoreEntity(ctx context.Context, ent persistence.Entity) error {
	now := e.now()

	trends, err := e.series(ctx, ent.ID, sourceTrends, metricTrendsInterest)
	if err != nil {
		return err
	}
	wiki, err := e.series(ctx, ent.ID, sourceWiki, metricWikiViews)
	if err != nil {
		return err
	}

	zTrends := ZScore(trends)
	zWiki := ZScore(wiki)

	spread, err := e.platformSpread(ctx, ent.ID, now)
	if err != nil {
		return err
	}
	affect, err := e.affect(ctx, ent.ID, now)
	if err != nil {
		return err
	}

	peakTS, err := e.store.Scores.PeakTS(ctx, ent.ID, now.Add(-e.cfg.PeakWindow))
	if err != nil {
		return err
	}
	hoursSincePeak := HoursSince(peakTS, now)

	var row persistence.Score
	switch e.cfg.Scheme {
	case SchemeMVP:
		c := MVPHeat(0.5*zTrends+0.5*zWiki, spread, affect, hoursSincePeak)
		row = persistence.Score{
			EntityID:  ent.ID,
			Timestamp: now,
			VelocityZ: c.VelocityZ,
			Spread:    c.Spread,
			Affect:    c.Affect,
			Decay:     c.FreshnessDecay,
			Heat:      c.Heat,
			Reasons: fmt.Sprintf("v=%.2f; spread=%.2f; affect=%.2f; hours_since_peak=%.1f",
				c.VelocityZ, c.Spread, c.Affect, hoursSincePeak),
		}
	default:
		accelAvg := 0.5*Acceleration(trends) + 0.5*Acceleration(wiki)
		nov := 0.5*Novelty(trends) + 0.5*Novelty(wiki)
		tentpole := TentpoleBoost(now, e.cfg.TentpoleCalendar, ent.Name)
		c := LiteHeat(LiteInputs{
			ZTrends:        zTrends,
			ZWiki:          zWiki,
			AccelAvg:       accelAvg,
			Novelty:        nov,
			EtFit:          e.cfg.DefaultEtFit,
			Tentpole:       tentpole,
			XPlatThreshold: e.cfg.XPlatThreshold,
		}, e.cfg.LiteWeights)
		row = persistence.Score{
			EntityID:  ent.ID,
			Timestamp: now,
			VelocityZ: c.VelocityZ,
			Accel:     c.Accel,
			Spread:    spread,
			Affect:    affect,
			Novelty:   c.Novelty,
			EtFit:     c.EtFit,
			Tentpole:  c.Tentpole,
			Decay:     c.Decay,
			Risk:      c.Risk,
			Heat:      c.Heat,
			Reasons: fmt.Sprintf("z_trends=%.2f; z_wiki=%.2f; accel=%.2f; xplat=%.0f; novelty=%.2f; tentpole=%.2f",
				zTrends, zWiki, accelAvg, c.XPlat, nov, tentpole),
		}
	}

	if err := e.store.Scores.Insert(ctx, row); err != nil {
		return fmt.Errorf("failed to persist score: %w", err)
	}
	return nil
}

// FoldTikTok runs the enrichment pass: for every entity with a recent score
// and TikTok signals in the fold window, compute the platform fold and append
// a new score row with the weighted adjustment added onto the latest heat.
// Prior rows are never mutated.
func (e *Engine) FoldTikTok(ctx context.Context) (BatchReport, error) {
	now := e.now()
	latest, err := e.store.Scores.LatestAll(ctx, now.Add(-7*24*time.Hour))
	if err != nil {
		return BatchReport{}, fmt.Errorf("failed to load latest scores: %w", err)
	}

	var report BatchReport
	for _, sc := range latest {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		applied, err := e.foldEntity(ctx, sc, now)
		if err != nil {
			report.fail(Failure{EntityID: sc.EntityID, Reason: err.Error()})
			log.Warn().Err(err).Int64("entity_id", sc.EntityID).Msg("tiktok fold failed, skipping entity")
			continue
		}
		if applied {
			report.ok()
		}
	}

	log.Info().Int("folded", report.Succeeded).Int("failed", report.Failed).Msg("tiktok fold pass complete")
	return report, nil
}

func (e *Engine) foldEntity(ctx context.Context, sc persistence.Score, now time.Time) (bool, error) {
	series, err := e.store.Signals.MetricSeries(ctx, sc.EntityID,
		[]string{SourceTikTokCC, SourceTikTokSearch}, now.Add(-e.cfg.TikTokWindow))
	if err != nil {
		return false, err
	}
	cc := flatten(series[SourceTikTokCC])
	search := flatten(series[SourceTikTokSearch])
	if len(cc) == 0 && len(search) == 0 {
		return false, nil
	}

	fold := TikTokFold(cc, search)

	row := sc
	row.Timestamp = now
	row.Heat = sc.Heat + e.cfg.TikTokWeight*fold.FoldValue
	row.Reasons = fmt.Sprintf("%s; tiktok_z=%.2f (w=%.2f)", sc.Reasons, fold.FoldValue, e.cfg.TikTokWeight)

	if err := e.store.Scores.Insert(ctx, row); err != nil {
		return false, fmt.Errorf("failed to persist folded score: %w", err)
	}
	return true, nil
}

func flatten(byMetric map[string][]persistence.Point) map[string][]float64 {
	out := make(map[string][]float64, len(byMetric))
	for metric, points := range byMetric {
		values := make([]float64, len(points))
		for i, p := range points {
			values[i] = p.Value
		}
		out[metric] = values
	}
	return out
}

func (e *Engine) series(ctx context.Context, entityID int64, source, metric string) ([]float64, error) {
	points, err := e.store.Signals.Series(ctx, entityID, source, metric, e.now().Add(-e.cfg.VelocityWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to load %s/%s series: %w", source, metric, err)
	}
	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Value
	}
	return values, nil
}

func (e *Engine) platformSpread(ctx context.Context, entityID int64, now time.Time) (float64, error) {
	since := now.Add(-e.cfg.SpreadWindow)
	reddit, err := e.store.Signals.HasRecent(ctx, entityID, []string{sourceReddit}, since)
	if err != nil {
		return 0, err
	}
	trends, err := e.store.Signals.HasRecent(ctx, entityID, []string{sourceTrends}, since)
	if err != nil {
		return 0, err
	}
	tiktok, err := e.store.Signals.HasRecent(ctx, entityID, tiktokSources, since)
	if err != nil {
		return 0, err
	}
	return PlatformSpread(reddit, trends, tiktok), nil
}

func (e *Engine) affect(ctx context.Context, entityID int64, now time.Time) (float64, error) {
	series, err := e.store.Signals.MetricSeries(ctx, entityID, []string{sourceGDELT}, now.Add(-e.cfg.SpreadWindow))
	if err != nil {
		return 0, err
	}
	gkg := series[sourceGDELT]
	if gkg == nil {
		return 0, nil
	}

	var tone *float64
	if points := gkg[metricGKGToneAvg]; len(points) > 0 {
		v := points[len(points)-1].Value
		tone = &v
	}
	mentions := 0.0
	if points := gkg[metricGKGMentions]; len(points) > 0 {
		mentions = points[len(points)-1].Value
	}
	return ToneToAffect(tone, mentions, e.cfg.AffectVolFloor), nil
}
