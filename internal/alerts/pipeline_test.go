package alerts

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediaheat/heatwatch/internal/gate"
	"github.com/mediaheat/heatwatch/internal/persistence"
	"github.com/mediaheat/heatwatch/internal/persistence/memory"
	"github.com/mediaheat/heatwatch/internal/scoring"
)

func seedDaily(t *testing.T, store *persistence.Store, entityID int64, source, metric string, end time.Time, values []float64) {
	t.Helper()
	for i, v := range values {
		ts := end.Add(-time.Duration(len(values)-1-i) * 24 * time.Hour)
		require.NoError(t, store.Signals.Insert(context.Background(), persistence.Signal{
			EntityID:  entityID,
			Source:    source,
			Metric:    metric,
			Timestamp: ts,
			Value:     v,
		}))
	}
}

// Full pipeline across polls: a spiking entity must survive scoring and two
// gate polls before producing exactly one pre-trade alert, and the debounce
// keeps the next poll quiet.
func TestPipeline_SpikeProducesSinglePreTradeAlert(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	now := time.Now().UTC()

	id, err := store.Entities.Upsert(ctx, persistence.Entity{Name: "Breakout Act", Type: "person"})
	require.NoError(t, err)

	// Flat baselines ending in a spike on trends and wiki; a reddit signal
	// makes the second active platform so the spread gate clears.
	spike := []float64{10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 80}
	seedDaily(t, store, id, "trends", "interest", now, spike)
	seedDaily(t, store, id, "wiki", "views", now, spike)
	require.NoError(t, store.Signals.Insert(ctx, persistence.Signal{
		EntityID: id, Source: "reddit", Metric: "mentions", Timestamp: now, Value: 12,
	}))

	engine := scoring.NewEngine(store, scoring.DefaultConfig())
	evaluator := gate.NewEvaluator(store, gate.DefaultConfig())
	sender := &fakeSender{}
	dispatcher := NewDispatcher(store, sender, nil)

	poll := func() Report {
		_, err := engine.Run(ctx)
		require.NoError(t, err)
		candidates, err := evaluator.Evaluate(ctx, 10)
		require.NoError(t, err)
		return dispatcher.Dispatch(ctx, candidates)
	}

	// First poll passes the gate but is not yet persistent.
	report := poll()
	assert.Zero(t, report.Dispatched, "one passing poll must not alert")

	// Second consecutive pass clears the persistence threshold.
	report = poll()
	assert.Equal(t, 1, report.Dispatched)
	assert.Equal(t, 1, report.Delivered)

	stored, err := store.Alerts.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "Breakout Act", stored[0].EntityName)
	assert.True(t, stored[0].PreTrade, "no trade coverage existed at dispatch")
	assert.Nil(t, stored[0].LeadTimeMinutes)
	require.Len(t, sender.sent, 1)

	// Heat holds steady, so the debounce window keeps the next poll quiet.
	report = poll()
	assert.Zero(t, report.Dispatched)

	stored, err = store.Alerts.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, stored, 1, "sustained heat inside the debounce window never re-alerts")
}
