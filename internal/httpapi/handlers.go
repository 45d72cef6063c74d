package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mediaheat/heatwatch/internal/persistence"
)

const (
	defaultTopN     = 10
	maxTopN         = 100
	defaultAlertCap = 50
	topCacheTTL     = 30 * time.Second
)

// Handlers serves the read-only JSON endpoints over the store.
type Handlers struct {
	store       *persistence.Store
	cache       Cache
	scoreWindow time.Duration
	now         func() time.Time
}

// NewHandlers creates the handler set. scoreWindow bounds how stale a score
// row may be and still appear in rankings.
func NewHandlers(store *persistence.Store, cache Cache, scoreWindow time.Duration) *Handlers {
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &Handlers{
		store:       store,
		cache:       cache,
		scoreWindow: scoreWindow,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// TopEntry is one row of the heat ranking.
type TopEntry struct {
	EntityID int64   `json:"entity_id"`
	Name     string  `json:"name"`
	Heat     float64 `json:"heat"`
	Velocity float64 `json:"velocity_z"`
	Spread   float64 `json:"spread"`
	Reasons  string  `json:"reasons"`
	ScoredAt string  `json:"scored_at"`
}

// Top returns the current heat ranking, hottest first.
func (h *Handlers) Top(w http.ResponseWriter, r *http.Request) {
	n := queryInt(r, "n", defaultTopN)
	if n < 1 {
		n = defaultTopN
	}
	if n > maxTopN {
		n = maxTopN
	}

	cacheKey := fmt.Sprintf("top:%d", n)
	if body, ok := h.cache.Get(cacheKey); ok {
		w.Write(body)
		return
	}

	since := h.now().Add(-h.scoreWindow)
	scores, err := h.store.Scores.LatestAll(r.Context(), since)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load scores")
		log.Error().Err(err).Msg("top endpoint failed to load scores")
		return
	}
	if len(scores) > n {
		scores = scores[:n]
	}

	entries := make([]TopEntry, 0, len(scores))
	for _, sc := range scores {
		name := ""
		if ent, err := h.store.Entities.Get(r.Context(), sc.EntityID); err == nil && ent != nil {
			name = ent.Name
		}
		entries = append(entries, TopEntry{
			EntityID: sc.EntityID,
			Name:     name,
			Heat:     sc.Heat,
			Velocity: sc.VelocityZ,
			Spread:   sc.Spread,
			Reasons:  sc.Reasons,
			ScoredAt: sc.Timestamp.UTC().Format(time.RFC3339),
		})
	}

	body, err := json.Marshal(map[string]interface{}{"entries": entries, "as_of": h.now().Format(time.RFC3339)})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to encode response")
		return
	}
	h.cache.Set(cacheKey, body, topCacheTTL)
	w.Write(body)
}

// Alerts returns recent alerts, newest first.
func (h *Handlers) Alerts(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultAlertCap)
	if limit < 1 || limit > 500 {
		limit = defaultAlertCap
	}
	alerts, err := h.store.Alerts.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load alerts")
		log.Error().Err(err).Msg("alerts endpoint failed")
		return
	}
	writeJSON(w, map[string]interface{}{"alerts": alerts})
}

// SourceHealth returns the durable circuit state of every known source.
func (h *Handlers) SourceHealth(w http.ResponseWriter, r *http.Request) {
	rows, err := h.store.Health.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load source health")
		log.Error().Err(err).Msg("source health endpoint failed")
		return
	}
	writeJSON(w, map[string]interface{}{"sources": rows})
}

// Entities lists the tracked entity catalog.
func (h *Handlers) Entities(w http.ResponseWriter, r *http.Request) {
	rows, err := h.store.Entities.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load entities")
		log.Error().Err(err).Msg("entities endpoint failed")
		return
	}
	writeJSON(w, map[string]interface{}{"entities": rows})
}

// Healthz is the liveness probe.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok", "ts": h.now().Format(time.RFC3339)})
}

// NotFound renders JSON 404s so API consumers never see an HTML error page.
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeError(w, http.StatusNotFound, "not found")
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Debug().Err(err).Msg("response encode failed")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
