package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediaheat/heatwatch/internal/persistence"
)

func TestEntityRepo_UpsertMergesAliasesAndKeepsID(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	id1, err := store.Entities.Upsert(ctx, persistence.Entity{Name: "Alias Person", Type: "person", Aliases: []string{"A"}})
	require.NoError(t, err)
	id2, err := store.Entities.Upsert(ctx, persistence.Entity{Name: "Alias Person", Type: "person", Aliases: []string{"B", "A"}})
	require.NoError(t, err)
	require.Equal(t, id1, id2)

	ent, err := store.Entities.Get(ctx, id1)
	require.NoError(t, err)
	require.NotNil(t, ent)
	assert.ElementsMatch(t, []string{"A", "B"}, ent.Aliases)
}

func TestSignalRepo_DuplicateKeyIsSilentNoOp(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	ts := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	sig := persistence.Signal{EntityID: 1, Source: "reddit", Metric: "mentions", Timestamp: ts, Value: 5}
	require.NoError(t, store.Signals.Insert(ctx, sig))
	sig.Value = 50
	require.NoError(t, store.Signals.Insert(ctx, sig))

	points, err := store.Signals.Series(ctx, 1, "reddit", "mentions", ts.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, 5.0, points[0].Value)
}

func TestSignalRepo_SeriesIsOrderedAndWindowed(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	// Inserted out of order, one point outside the window.
	for _, d := range []int{2, 0, 1, -5} {
		require.NoError(t, store.Signals.Insert(ctx, persistence.Signal{
			EntityID: 1, Source: "wiki", Metric: "views",
			Timestamp: base.AddDate(0, 0, d), Value: float64(d),
		}))
	}

	points, err := store.Signals.Series(ctx, 1, "wiki", "views", base.AddDate(0, 0, -1))
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.Equal(t, 0.0, points[0].Value)
	assert.Equal(t, 1.0, points[1].Value)
	assert.Equal(t, 2.0, points[2].Value)
}

func TestTrendRepo_RecordPassStrictlyNewerRule(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	t1 := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	passes, err := store.Trend.RecordPass(ctx, 1, t1)
	require.NoError(t, err)
	assert.Equal(t, 1, passes)

	// Same timestamp restarts at 1 rather than incrementing.
	passes, err = store.Trend.RecordPass(ctx, 1, t1)
	require.NoError(t, err)
	assert.Equal(t, 1, passes)

	passes, err = store.Trend.RecordPass(ctx, 1, t1.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, passes)

	// Older timestamp also restarts.
	passes, err = store.Trend.RecordPass(ctx, 1, t1.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, passes)
}

func TestMentionRepo_FirstMentionIsMinAcrossSources(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	early := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

	require.NoError(t, store.Mentions.Record(ctx, persistence.TradeMention{
		EntityID: 1, Source: "google_news_search", FirstSeenTS: early.Add(2 * time.Hour),
	}))
	require.NoError(t, store.Mentions.Record(ctx, persistence.TradeMention{
		EntityID: 1, Source: "scrape_news", FirstSeenTS: early,
	}))

	got, err := store.Mentions.FirstMention(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, early, *got)

	missing, err := store.Mentions.FirstMention(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestScoreRepo_DuplicateEntityTimestampRejected(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	ts := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Scores.Insert(ctx, persistence.Score{EntityID: 1, Timestamp: ts, Heat: 2}))

	// Same (entity, ts) violates the score table's primary key.
	err := store.Scores.Insert(ctx, persistence.Score{EntityID: 1, Timestamp: ts, Heat: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate score")

	require.NoError(t, store.Scores.Insert(ctx, persistence.Score{EntityID: 2, Timestamp: ts, Heat: 3}))
	require.NoError(t, store.Scores.Insert(ctx, persistence.Score{EntityID: 1, Timestamp: ts.Add(time.Minute), Heat: 3}))
}

func TestScoreRepo_LatestAllReturnsNewestPerEntity(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Scores.Insert(ctx, persistence.Score{EntityID: 1, Timestamp: now.Add(-2 * time.Hour), Heat: 1}))
	require.NoError(t, store.Scores.Insert(ctx, persistence.Score{EntityID: 1, Timestamp: now, Heat: 2}))
	require.NoError(t, store.Scores.Insert(ctx, persistence.Score{EntityID: 2, Timestamp: now, Heat: 9}))

	rows, err := store.Scores.LatestAll(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 9.0, rows[0].Heat, "ordered by heat descending")
	assert.Equal(t, 2.0, rows[1].Heat)
}

func TestScoreRepo_PeakTS(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Scores.Insert(ctx, persistence.Score{EntityID: 1, Timestamp: now.Add(-3 * time.Hour), Heat: 5}))
	require.NoError(t, store.Scores.Insert(ctx, persistence.Score{EntityID: 1, Timestamp: now.Add(-1 * time.Hour), Heat: 2}))

	peak, err := store.Scores.PeakTS(ctx, 1, now.Add(-48*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, peak)
	assert.Equal(t, now.Add(-3*time.Hour), *peak)

	none, err := store.Scores.PeakTS(ctx, 1, now.Add(-30*time.Minute))
	require.NoError(t, err)
	assert.Nil(t, none)
}
