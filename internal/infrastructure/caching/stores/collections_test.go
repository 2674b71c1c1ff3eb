package stores

import (
	"testing"
	"time"

	"github.com/RevLensAI/revlens-go/internal/domain/entities/pipeline"
	"github.com/RevLensAI/revlens-go/internal/infrastructure/caching/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(ttl time.Duration) (*CollectionsStore, *time.Time) {
	store := NewCollectionsStore(ttl, nil)
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now })
	return store, &now
}

func TestFreshnessBoundary(t *testing.T) {
	store, now := newTestStore(300 * time.Second)

	store.SetStages([]pipeline.Stage{{StageName: "Discovery", DisplayOrder: 1}})
	fetchedAt := *now

	// 1ms inside the window: still fresh, no refetch needed.
	*now = fetchedAt.Add(300*time.Second - time.Millisecond)
	_, state := store.Stages()
	assert.Equal(t, types.StateFresh, state)

	// Exactly at the boundary counts as fresh.
	*now = fetchedAt.Add(300 * time.Second)
	_, state = store.Stages()
	assert.Equal(t, types.StateFresh, state)

	// 1ms past the window: stale, data still readable.
	*now = fetchedAt.Add(300*time.Second + time.Millisecond)
	stages, state := store.Stages()
	assert.Equal(t, types.StateStale, state)
	require.Len(t, stages, 1, "stale data stays available for immediate display")
}

func TestStateLifecycle(t *testing.T) {
	store, _ := newTestStore(300 * time.Second)
	key := types.DealsKey("Discovery")

	assert.Equal(t, types.StateAbsent, store.State(key))

	require.True(t, store.BeginFetch(key))
	assert.Equal(t, types.StateLoading, store.State(key))

	store.SetDeals("Discovery", []pipeline.Deal{{Name: "Acme Expansion"}})
	assert.Equal(t, types.StateFresh, store.State(key))
}

func TestBeginFetchRefusesWhileLoading(t *testing.T) {
	store, _ := newTestStore(300 * time.Second)
	key := types.StagesKey()

	require.True(t, store.BeginFetch(key))
	assert.False(t, store.BeginFetch(key), "a second fetch for a loading key must be refused")

	store.CompleteFetch(key)
	assert.True(t, store.BeginFetch(key), "completed keys may fetch again")
}

func TestFailedKeyNeverAutoRetries(t *testing.T) {
	store, now := newTestStore(300 * time.Second)
	key := types.DealsKey("Negotiation")

	require.True(t, store.BeginFetch(key))
	store.FailFetch(key, "server_error")

	assert.Equal(t, types.StateFailed, store.State(key))
	assert.True(t, store.IsFailed(key))
	assert.False(t, store.BeginFetch(key), "failed keys must not refetch without an explicit refresh")

	// Time passing does not re-arm a failed key.
	*now = now.Add(time.Hour)
	assert.False(t, store.BeginFetch(key))

	store.ClearFailure(key)
	assert.Equal(t, types.StateAbsent, store.State(key))
	assert.True(t, store.BeginFetch(key))
}

func TestAbandonFetchKeepsPriorData(t *testing.T) {
	store, _ := newTestStore(300 * time.Second)
	key := types.StagesKey()

	store.SetStages([]pipeline.Stage{{StageName: "Discovery"}})
	require.True(t, store.BeginFetch(key))

	store.AbandonFetch(key)
	stages, state := store.Stages()
	assert.Equal(t, types.StateFresh, state)
	assert.Len(t, stages, 1)
	assert.False(t, store.IsFailed(key), "an abandoned fetch is not a failure")
}

func TestAbandonFetchWithNoPriorDataResetsToAbsent(t *testing.T) {
	store, _ := newTestStore(300 * time.Second)
	key := types.DealsKey("Discovery")

	require.True(t, store.BeginFetch(key))
	store.AbandonFetch(key)
	assert.Equal(t, types.StateAbsent, store.State(key))
}

func TestFailedRefetchDropsStaleData(t *testing.T) {
	store, now := newTestStore(300 * time.Second)

	store.SetDeals("Discovery", []pipeline.Deal{{Name: "Acme Expansion"}, {Name: "Globex Renewal"}})
	store.SetStages([]pipeline.Stage{{StageName: "Discovery", DisplayOrder: 1}})

	// Age both collections past the window, then fail the refetch. The
	// pre-failure data must not keep showing behind a failed state.
	*now = now.Add(301 * time.Second)
	key := types.DealsKey("Discovery")
	require.True(t, store.BeginFetch(key))
	store.FailFetch(key, "server_error")

	deals, state := store.Deals("Discovery")
	assert.Equal(t, types.StateFailed, state)
	assert.Empty(t, deals, "a failed collection shows empty, not the stale payload")

	require.True(t, store.BeginFetch(types.StagesKey()))
	store.FailFetch(types.StagesKey(), "timeout")
	stages, state := store.Stages()
	assert.Equal(t, types.StateFailed, state)
	assert.Empty(t, stages)
}

func TestClearStageDropsAllStageCollections(t *testing.T) {
	store, _ := newTestStore(300 * time.Second)

	store.SetDeals("Discovery", []pipeline.Deal{{Name: "Acme Expansion"}})
	store.SetInsights("Discovery", pipeline.InsightMap{"Acme Expansion": pipeline.NoInsightData()}, time.Now())
	require.True(t, store.BeginFetch(types.SignalsKey("Discovery")))
	store.FailFetch(types.SignalsKey("Discovery"), "timeout")

	// A second stage stays untouched.
	store.SetDeals("Negotiation", []pipeline.Deal{{Name: "Globex Renewal"}})

	store.ClearStage("Discovery")

	assert.Equal(t, types.StateAbsent, store.State(types.DealsKey("Discovery")))
	assert.Equal(t, types.StateAbsent, store.State(types.InsightsKey("Discovery")))
	assert.False(t, store.IsFailed(types.SignalsKey("Discovery")), "refresh clears failed markers")

	deals, state := store.Deals("Negotiation")
	assert.Equal(t, types.StateFresh, state)
	assert.Len(t, deals, 1)
}

func TestMergeSignalsAccumulates(t *testing.T) {
	store, _ := newTestStore(300 * time.Second)

	store.MergeSignals("Discovery", pipeline.SignalMap{"Acme Expansion": {StrongPositive: 2}})
	store.MergeSignals("Discovery", pipeline.SignalMap{"Globex Renewal": {Negative: 1}})

	signals, _ := store.Signals("Discovery")
	require.Len(t, signals, 2)
	assert.Equal(t, 2, signals["Acme Expansion"].StrongPositive)
	assert.Equal(t, 1, signals["Globex Renewal"].Negative)
}
