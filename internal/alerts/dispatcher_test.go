package alerts

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediaheat/heatwatch/internal/gate"
	"github.com/mediaheat/heatwatch/internal/persistence"
	"github.com/mediaheat/heatwatch/internal/persistence/memory"
)

type fakeSender struct {
	sent []Message
	err  error
}

func (f *fakeSender) Send(ctx context.Context, msg Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func newTestDispatcher(store *persistence.Store, sender Sender, hub *Hub, now time.Time) *Dispatcher {
	d := NewDispatcher(store, sender, hub)
	d.now = func() time.Time { return now }
	return d
}

func candidateFor(id int64, name string, heat float64) gate.Candidate {
	return gate.Candidate{
		EntityID: id,
		Name:     name,
		Heat:     heat,
		Passes:   2,
		Score: persistence.Score{
			EntityID:  id,
			VelocityZ: 3.1,
			Spread:    1.0,
			Heat:      heat,
			Reasons:   "z_trends=3.10",
		},
	}
}

func TestDispatch_PreTradeAlert(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	sender := &fakeSender{}

	id, err := store.Entities.Upsert(ctx, persistence.Entity{Name: "Early Signal", Type: "person"})
	require.NoError(t, err)

	d := newTestDispatcher(store, sender, nil, now)
	report := d.Dispatch(ctx, []gate.Candidate{candidateFor(id, "Early Signal", 2.4)})

	assert.Equal(t, 1, report.Dispatched)
	assert.Equal(t, 1, report.Delivered)
	assert.Zero(t, report.Failed)

	stored, err := store.Alerts.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.True(t, stored[0].PreTrade, "no trade coverage yet means pre-trade")
	assert.Nil(t, stored[0].LeadTimeMinutes)
	assert.NotEmpty(t, stored[0].ID)
	assert.Equal(t, 2.4, stored[0].Heat)

	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0].Header, "Early Signal")
	assert.Len(t, sender.sent[0].Buttons, 4)
}

func TestDispatch_TrailingAlertLeadTimeCountsMinutesSinceMention(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	sender := &fakeSender{}

	id, err := store.Entities.Upsert(ctx, persistence.Entity{Name: "Late Alert", Type: "person"})
	require.NoError(t, err)
	require.NoError(t, store.Mentions.Record(ctx, persistence.TradeMention{
		EntityID: id, Source: "google_news_search", FirstSeenTS: now.Add(-90 * time.Minute),
	}))

	d := newTestDispatcher(store, sender, nil, now)
	d.Dispatch(ctx, []gate.Candidate{candidateFor(id, "Late Alert", 3.0)})

	stored, err := store.Alerts.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.False(t, stored[0].PreTrade)
	require.NotNil(t, stored[0].LeadTimeMinutes)
	assert.Equal(t, 90, *stored[0].LeadTimeMinutes, "alert trails the mention by 90 minutes")
}

func TestDispatch_DeliveryFailureKeepsAlertRecord(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	sender := &fakeSender{err: fmt.Errorf("webhook down")}

	id, err := store.Entities.Upsert(ctx, persistence.Entity{Name: "Unlucky", Type: "person"})
	require.NoError(t, err)

	d := newTestDispatcher(store, sender, nil, now)
	report := d.Dispatch(ctx, []gate.Candidate{candidateFor(id, "Unlucky", 1.8)})

	assert.Equal(t, 1, report.Dispatched, "persistence succeeded")
	assert.Zero(t, report.Delivered)
	assert.Zero(t, report.Failed, "delivery failure is not a dispatch failure")

	stored, err := store.Alerts.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, stored, 1, "alert record survives a dead webhook")
}

func TestDispatch_MarksTrendStateAlerted(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	sender := &fakeSender{}

	id, err := store.Entities.Upsert(ctx, persistence.Entity{Name: "Tracked", Type: "person"})
	require.NoError(t, err)

	d := newTestDispatcher(store, sender, nil, now)
	d.Dispatch(ctx, []gate.Candidate{candidateFor(id, "Tracked", 4.2)})

	st, err := store.Trend.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, st)
	require.NotNil(t, st.LastAlertTS)
	assert.Equal(t, now, *st.LastAlertTS)
	require.NotNil(t, st.LastAlertHeat)
	assert.Equal(t, 4.2, *st.LastAlertHeat)
	assert.Equal(t, 4.2, st.PriorPeakHeat)

	// A later, cooler alert never lowers the recorded peak.
	d.Dispatch(ctx, []gate.Candidate{candidateFor(id, "Tracked", 1.0)})
	st, err = store.Trend.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 4.2, st.PriorPeakHeat)
}

func TestDispatch_PublishesToHub(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	hub := NewHub()
	sub, cancel := hub.Subscribe()
	defer cancel()

	id, err := store.Entities.Upsert(ctx, persistence.Entity{Name: "Live Feed", Type: "person"})
	require.NoError(t, err)

	d := newTestDispatcher(store, &fakeSender{}, hub, now)
	d.Dispatch(ctx, []gate.Candidate{candidateFor(id, "Live Feed", 2.0)})

	select {
	case alert := <-sub:
		assert.Equal(t, "Live Feed", alert.EntityName)
	case <-time.After(time.Second):
		t.Fatal("expected alert on hub subscription")
	}
}

func TestHub_SlowSubscriberDropsOldest(t *testing.T) {
	hub := NewHub()
	sub, cancel := hub.Subscribe()
	defer cancel()

	for i := 0; i < 20; i++ {
		hub.Publish(persistence.Alert{ID: fmt.Sprintf("a-%d", i)})
	}

	// Channel capacity is 16; the newest alerts must still be present.
	var last persistence.Alert
	drained := 0
	for {
		select {
		case a := <-sub:
			last = a
			drained++
			continue
		default:
		}
		break
	}
	assert.Equal(t, 16, drained)
	assert.Equal(t, "a-19", last.ID, "oldest frames are dropped, newest kept")
}
