package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediaheat/heatwatch/internal/alerts"
	"github.com/mediaheat/heatwatch/internal/persistence"
	"github.com/mediaheat/heatwatch/internal/persistence/memory"
)

func newTestServer(t *testing.T, store *persistence.Store) *Server {
	t.Helper()
	cfg := DefaultServerConfig()
	cfg.ScoreWindow = 24 * time.Hour
	return NewServer(cfg, store, alerts.NewHub())
}

func seedScoredEntity(t *testing.T, store *persistence.Store, name string, heat float64, ts time.Time) int64 {
	t.Helper()
	ctx := context.Background()
	id, err := store.Entities.Upsert(ctx, persistence.Entity{Name: name, Type: "person"})
	require.NoError(t, err)
	require.NoError(t, store.Scores.Insert(ctx, persistence.Score{
		EntityID: id, Timestamp: ts, VelocityZ: 2.5, Spread: 1, Heat: heat, Reasons: "test",
	}))
	return id
}

func doGET(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestTopEndpoint_RanksByHeat(t *testing.T) {
	store := memory.NewStore()
	now := time.Now().UTC()
	seedScoredEntity(t, store, "Cooler", 1.0, now)
	seedScoredEntity(t, store, "Hotter", 5.0, now)

	rec := doGET(t, newTestServer(t, store), "/top?n=10")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body struct {
		Entries []TopEntry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Entries, 2)
	assert.Equal(t, "Hotter", body.Entries[0].Name)
	assert.Equal(t, 5.0, body.Entries[0].Heat)
	assert.Equal(t, "Cooler", body.Entries[1].Name)
}

func TestTopEndpoint_RespectsLimit(t *testing.T) {
	store := memory.NewStore()
	now := time.Now().UTC()
	for _, name := range []string{"A", "B", "C"} {
		seedScoredEntity(t, store, name, 1.0, now)
	}

	rec := doGET(t, newTestServer(t, store), "/top?n=2")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Entries []TopEntry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Entries, 2)
}

func TestAlertsEndpoint(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, store.Alerts.Insert(ctx, persistence.Alert{
		ID: "a-1", EntityID: 1, EntityName: "Spiker", AlertTS: time.Now().UTC(), Heat: 3.0, PreTrade: true,
	}))

	rec := doGET(t, newTestServer(t, store), "/alerts")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Alerts []persistence.Alert `json:"alerts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Alerts, 1)
	assert.Equal(t, "Spiker", body.Alerts[0].EntityName)
	assert.True(t, body.Alerts[0].PreTrade)
}

func TestSourceHealthEndpoint(t *testing.T) {
	store := memory.NewStore()
	now := time.Now().UTC()
	require.NoError(t, store.Health.RecordError(context.Background(), "reddit", now, now.Add(10*time.Minute)))

	rec := doGET(t, newTestServer(t, store), "/sources/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Sources []persistence.SourceHealth `json:"sources"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Sources, 1)
	assert.Equal(t, "reddit", body.Sources[0].Source)
	assert.Equal(t, 1, body.Sources[0].ConsecutiveErrors)
}

func TestHealthzEndpoint(t *testing.T) {
	rec := doGET(t, newTestServer(t, memory.NewStore()), "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestUnknownRouteReturnsJSON404(t *testing.T) {
	rec := doGET(t, newTestServer(t, memory.NewStore()), "/nope")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error"`)
}

func TestRequestIDHeaderIsSet(t *testing.T) {
	rec := doGET(t, newTestServer(t, memory.NewStore()), "/healthz")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestMemoryCache_TTLExpiry(t *testing.T) {
	c := NewMemoryCache()
	c.Set("k", []byte("v"), 50*time.Millisecond)

	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), got)

	time.Sleep(60 * time.Millisecond)
	_, ok = c.Get("k")
	assert.False(t, ok)
}
