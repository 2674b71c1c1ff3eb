package services

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/RevLensAI/revlens-go/internal/domain/entities/pipeline"
	"github.com/RevLensAI/revlens-go/internal/infrastructure/caching/manager"
	"github.com/RevLensAI/revlens-go/internal/infrastructure/caching/types"
	"github.com/RevLensAI/revlens-go/internal/infrastructure/gateway"
	"github.com/RevLensAI/revlens-go/internal/infrastructure/persistence/localstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testStages = []pipeline.Stage{
	{StageName: "Discovery", DisplayOrder: 1},
	{StageName: "Negotiation", DisplayOrder: 2},
	{StageName: "Closed Won", DisplayOrder: 3, ClosedWon: true},
}

var testDeals = []pipeline.Deal{
	{Name: "Acme Expansion", Owner: "dana", Amount: 50000, StageName: "Discovery"},
	{Name: "Globex Renewal", Owner: "lee", Amount: 20000, StageName: "Discovery"},
}

// happyHandler scripts a fully successful upstream.
func happyHandler(t *testing.T) func(context.Context, gateway.Endpoint, gateway.CallOptions) (gateway.Outcome, error) {
	return func(_ context.Context, endpoint gateway.Endpoint, opts gateway.CallOptions) (gateway.Outcome, error) {
		switch endpoint {
		case gateway.EndpointStages:
			return successOutcome(t, testStages), nil
		case gateway.EndpointDealsByStage:
			return successOutcome(t, testDeals), nil
		case gateway.EndpointDealInsights:
			return successOutcome(t, pipeline.InsightMap{}), nil
		case gateway.EndpointActivityCount:
			return successOutcome(t, pipeline.ActivityMap{}), nil
		case gateway.EndpointSignalsGroup:
			return successOutcome(t, pipeline.SignalMap{}), nil
		default:
			t.Fatalf("unexpected endpoint %s", endpoint)
			return gateway.Outcome{}, nil
		}
	}
}

func newTestPipeline(t *testing.T, handler func(context.Context, gateway.Endpoint, gateway.CallOptions) (gateway.Outcome, error)) (*PipelineService, *fakeCaller, *manager.Manager, *localstore.Store) {
	t.Helper()
	cache, store := newTestCache(t)
	caller := &fakeCaller{handler: handler}

	derived := NewDerivedService(caller, cache, nil)
	derived.sleep = func(context.Context, time.Duration) error { return nil }

	svc := NewPipelineService(caller, cache, derived, store, nil)
	svc.sleep = func(context.Context, time.Duration) error { return nil }
	return svc, caller, cache, store
}

func TestRunSettlesWithAllCollections(t *testing.T) {
	svc, caller, cache, store := newTestPipeline(t, happyHandler(t))

	final := svc.Run(context.Background(), "")
	assert.Equal(t, PhaseSettled, final.Phase)
	assert.Equal(t, "Discovery", final.ActiveStage, "default stage is first in display order")

	_, state := cache.Collections.Stages()
	assert.Equal(t, types.StateFresh, state)
	deals, state := cache.Collections.Deals("Discovery")
	assert.Equal(t, types.StateFresh, state)
	assert.Len(t, deals, 2)

	insights, state := cache.Collections.Insights("Discovery")
	assert.Equal(t, types.StateFresh, state)
	assert.Equal(t, pipeline.NoInsightData(), insights["Acme Expansion"], "deals missing from the upstream map carry N/A flags")

	// Derived maps persist under "<kind>_<stageName>".
	_, found := store.Get("insights_Discovery")
	assert.True(t, found)
	_, found = store.Get("activityCounts_Discovery")
	assert.True(t, found)
	_, found = store.Get("signals_Discovery")
	assert.True(t, found)

	// One call per collection, signals in a single batch.
	assert.Len(t, caller.callsTo(gateway.EndpointStages), 1)
	assert.Len(t, caller.callsTo(gateway.EndpointDealsByStage), 1)
	assert.Len(t, caller.callsTo(gateway.EndpointSignalsGroup), 1)
}

func TestStageResolutionPrecedence(t *testing.T) {
	t.Run("explicit request wins", func(t *testing.T) {
		svc, _, _, store := newTestPipeline(t, happyHandler(t))
		store.Set(activeStageKey, "Closed Won")

		final := svc.Run(context.Background(), "Negotiation")
		assert.Equal(t, "Negotiation", final.ActiveStage)
	})

	t.Run("previously viewed stage beats first", func(t *testing.T) {
		svc, _, _, store := newTestPipeline(t, happyHandler(t))
		store.Set(activeStageKey, "Closed Won")

		final := svc.Run(context.Background(), "")
		assert.Equal(t, "Closed Won", final.ActiveStage)
	})

	t.Run("vanished explicit stage falls back", func(t *testing.T) {
		svc, _, _, _ := newTestPipeline(t, happyHandler(t))

		final := svc.Run(context.Background(), "Qualification")
		assert.Equal(t, "Discovery", final.ActiveStage)
	})

	t.Run("vanished previous stage falls back to first", func(t *testing.T) {
		svc, _, _, store := newTestPipeline(t, happyHandler(t))
		store.Set(activeStageKey, "Qualification")

		final := svc.Run(context.Background(), "")
		assert.Equal(t, "Discovery", final.ActiveStage)
	})
}

func TestStageListFailureFailsRun(t *testing.T) {
	svc, _, cache, _ := newTestPipeline(t, func(_ context.Context, endpoint gateway.Endpoint, _ gateway.CallOptions) (gateway.Outcome, error) {
		return statusOutcome(gateway.OutcomeServerError, 500), nil
	})

	final := svc.Run(context.Background(), "")
	assert.Equal(t, PhaseFailed, final.Phase)
	assert.Equal(t, types.StagesKey(), final.FailedKey)
	assert.True(t, cache.Collections.IsFailed(types.StagesKey()))
}

func TestFailedDealsDoNotAutoRetry(t *testing.T) {
	svc, caller, cache, _ := newTestPipeline(t, func(_ context.Context, endpoint gateway.Endpoint, _ gateway.CallOptions) (gateway.Outcome, error) {
		if endpoint == gateway.EndpointStages {
			return successOutcome(t, testStages), nil
		}
		return statusOutcome(gateway.OutcomeTimeout, 504), nil
	})

	final := svc.Run(context.Background(), "Discovery")
	assert.Equal(t, PhaseFailed, final.Phase)
	assert.Equal(t, types.DealsKey("Discovery"), final.FailedKey)

	// A second run must not hit the deals endpoint again: the key is
	// parked until an explicit refresh.
	before := len(caller.callsTo(gateway.EndpointDealsByStage))
	final = svc.Run(context.Background(), "Discovery")
	assert.Equal(t, PhaseFailed, final.Phase)
	assert.Equal(t, before, len(caller.callsTo(gateway.EndpointDealsByStage)))
	assert.True(t, cache.Collections.IsFailed(types.DealsKey("Discovery")))
}

func TestFailureContainedToOneStage(t *testing.T) {
	svc, _, cache, _ := newTestPipeline(t, func(_ context.Context, endpoint gateway.Endpoint, opts gateway.CallOptions) (gateway.Outcome, error) {
		switch endpoint {
		case gateway.EndpointStages:
			return successOutcome(t, testStages), nil
		case gateway.EndpointDealsByStage:
			if opts.Query.Get("stage") == "Negotiation" {
				return statusOutcome(gateway.OutcomeServerError, 500), nil
			}
			return successOutcome(t, testDeals), nil
		default:
			return successOutcome(t, map[string]any{}), nil
		}
	})

	final := svc.Run(context.Background(), "Negotiation")
	assert.Equal(t, PhaseFailed, final.Phase)
	assert.Equal(t, types.DealsKey("Negotiation"), final.FailedKey)

	// Another stage is unaffected by the parked failure.
	final = svc.Run(context.Background(), "Discovery")
	assert.Equal(t, PhaseSettled, final.Phase)
	deals, state := cache.Collections.Deals("Discovery")
	assert.Equal(t, types.StateFresh, state)
	assert.Len(t, deals, 2)
	assert.True(t, cache.Collections.IsFailed(types.DealsKey("Negotiation")), "the failed stage stays parked")
}

func TestDerivedFailureDoesNotFailRun(t *testing.T) {
	svc, _, cache, _ := newTestPipeline(t, func(_ context.Context, endpoint gateway.Endpoint, _ gateway.CallOptions) (gateway.Outcome, error) {
		switch endpoint {
		case gateway.EndpointStages:
			return successOutcome(t, testStages), nil
		case gateway.EndpointDealsByStage:
			return successOutcome(t, testDeals), nil
		case gateway.EndpointDealInsights:
			return statusOutcome(gateway.OutcomeServerError, 500), nil
		default:
			return successOutcome(t, map[string]any{}), nil
		}
	})

	final := svc.Run(context.Background(), "Discovery")
	assert.Equal(t, PhaseSettled, final.Phase, "deals are on screen; a derived failure must not fail the run")
	assert.True(t, cache.Collections.IsFailed(types.InsightsKey("Discovery")))

	_, state := cache.Collections.Activity("Discovery")
	assert.Equal(t, types.StateFresh, state, "the other derived maps still resolve")
}

func TestConflictFallsBackToCachedStages(t *testing.T) {
	conflict := false
	svc, _, cache, _ := newTestPipeline(t, func(_ context.Context, endpoint gateway.Endpoint, _ gateway.CallOptions) (gateway.Outcome, error) {
		if endpoint == gateway.EndpointStages && conflict {
			return statusOutcome(gateway.OutcomeRetryableConflict, 409), nil
		}
		return happyHandler(t)(context.Background(), endpoint, gateway.CallOptions{Query: nil})
	})

	// First run populates the cache.
	require.Equal(t, PhaseSettled, svc.Run(context.Background(), "").Phase)

	// Age the stage list past the freshness window, then answer 409.
	cache.Collections.SetClock(func() time.Time { return time.Now().Add(time.Hour) })
	conflict = true

	final := svc.Run(context.Background(), "")
	assert.Equal(t, PhaseSettled, final.Phase, "a 409 is a silent no-op when cached data exists")
	assert.False(t, cache.Collections.IsFailed(types.StagesKey()))
}

func TestConflictWithEmptyCacheResetsQuietly(t *testing.T) {
	svc, _, cache, _ := newTestPipeline(t, func(context.Context, gateway.Endpoint, gateway.CallOptions) (gateway.Outcome, error) {
		return statusOutcome(gateway.OutcomeRetryableConflict, 409), nil
	})

	final := svc.Run(context.Background(), "")
	assert.Equal(t, PhaseIdle, final.Phase, "superseded with nothing cached means back to idle, not failed")
	assert.False(t, cache.Collections.IsFailed(types.StagesKey()))
}

func TestSafetyTimeoutsPerPhase(t *testing.T) {
	svc, caller, _, _ := newTestPipeline(t, happyHandler(t))
	svc.stageListTimeout = 10 * time.Second
	svc.dealFetchTimeout = 15 * time.Second

	start := time.Now()
	require.Equal(t, PhaseSettled, svc.Run(context.Background(), "").Phase)

	stageCalls := caller.callsTo(gateway.EndpointStages)
	require.Len(t, stageCalls, 1)
	require.True(t, stageCalls[0].HasDeadline, "the stage fetch carries a safety deadline")
	assert.InDelta(t, 10*time.Second, stageCalls[0].Deadline.Sub(start), float64(2*time.Second))

	dealCalls := caller.callsTo(gateway.EndpointDealsByStage)
	require.Len(t, dealCalls, 1)
	require.True(t, dealCalls[0].HasDeadline, "the deal fetch carries a safety deadline")
	assert.InDelta(t, 15*time.Second, dealCalls[0].Deadline.Sub(start), float64(2*time.Second))
}

func TestRefreshReArmsFailedCollections(t *testing.T) {
	failDeals := true
	svc, caller, cache, _ := newTestPipeline(t, func(_ context.Context, endpoint gateway.Endpoint, _ gateway.CallOptions) (gateway.Outcome, error) {
		switch endpoint {
		case gateway.EndpointStages:
			return successOutcome(t, testStages), nil
		case gateway.EndpointDealsByStage:
			if failDeals {
				return statusOutcome(gateway.OutcomeServerError, 500), nil
			}
			return successOutcome(t, testDeals), nil
		default:
			return successOutcome(t, map[string]any{}), nil
		}
	})

	require.Equal(t, PhaseFailed, svc.Run(context.Background(), "Discovery").Phase)
	require.True(t, cache.Collections.IsFailed(types.DealsKey("Discovery")))

	failDeals = false
	svc.Refresh(context.Background(), "Discovery")
	svc.Wait()

	assert.Equal(t, PhaseSettled, svc.State().Phase)
	assert.False(t, cache.Collections.IsFailed(types.DealsKey("Discovery")))
	assert.GreaterOrEqual(t, len(caller.callsTo(gateway.EndpointDealsByStage)), 2, "refresh refetches the parked collection")
}

func TestRefreshRecoversFromStageListFailure(t *testing.T) {
	failStages := true
	svc, caller, cache, _ := newTestPipeline(t, func(ctx context.Context, endpoint gateway.Endpoint, opts gateway.CallOptions) (gateway.Outcome, error) {
		if endpoint == gateway.EndpointStages && failStages {
			return statusOutcome(gateway.OutcomeServerError, 500), nil
		}
		return happyHandler(t)(ctx, endpoint, opts)
	})

	require.Equal(t, PhaseFailed, svc.Run(context.Background(), "").Phase)
	require.True(t, cache.Collections.IsFailed(types.StagesKey()))
	require.Empty(t, svc.State().ActiveStage, "no stage resolved when the stage list itself failed")

	// The upstream recovers. A refresh with no stage resolved must still
	// re-arm the stage list and refetch it.
	failStages = false
	svc.Refresh(context.Background(), "")
	svc.Wait()

	assert.Equal(t, PhaseSettled, svc.State().Phase)
	assert.False(t, cache.Collections.IsFailed(types.StagesKey()))
	assert.Len(t, caller.callsTo(gateway.EndpointStages), 2, "refresh refetches the parked stage list")
}

func TestStageSwitchSupersedesInFlightRun(t *testing.T) {
	var stageCalls atomic.Int32
	started := make(chan struct{}, 1)
	svc, caller, _, _ := newTestPipeline(t, func(ctx context.Context, endpoint gateway.Endpoint, opts gateway.CallOptions) (gateway.Outcome, error) {
		if endpoint == gateway.EndpointStages && stageCalls.Add(1) == 1 {
			started <- struct{}{}
			<-ctx.Done()
			return gateway.Outcome{}, ctx.Err()
		}
		return happyHandler(t)(ctx, endpoint, opts)
	})

	svc.Activate(context.Background(), "")
	<-started // first run is parked inside its stage fetch

	svc.Activate(context.Background(), "Negotiation")
	svc.Wait()

	final := svc.State()
	assert.Equal(t, PhaseSettled, final.Phase, "the newest request runs to completion")
	assert.Equal(t, "Negotiation", final.ActiveStage)

	var negotiationFetched bool
	for _, call := range caller.callsTo(gateway.EndpointDealsByStage) {
		if call.Opts.Query.Get("stage") == "Negotiation" {
			negotiationFetched = true
		}
	}
	assert.True(t, negotiationFetched, "the requested stage's deals are fetched")
}

func TestActivateCancelsPreviousRun(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 2)
	cancelled := make(chan struct{})
	svc, _, _, _ := newTestPipeline(t, func(ctx context.Context, endpoint gateway.Endpoint, _ gateway.CallOptions) (gateway.Outcome, error) {
		if endpoint == gateway.EndpointStages {
			select {
			case started <- struct{}{}:
			default:
			}
			select {
			case <-release:
			case <-ctx.Done():
				close(cancelled)
				return gateway.Outcome{}, ctx.Err()
			}
		}
		return successOutcome(t, testStages), nil
	})

	svc.Activate(context.Background(), "")
	<-started // first run is mid-fetch before the second activation lands
	svc.Activate(context.Background(), "")

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("superseded run was never cancelled")
	}
	close(release)
	svc.Wait()
}

func TestTransitionRejectsIllegalSequences(t *testing.T) {
	state := PipelineState{Phase: PhaseIdle}

	_, err := transition(state, PipelineEvent{Kind: EventDealsLoaded})
	assert.Error(t, err, "deals cannot load before a run starts")

	state, err = transition(state, PipelineEvent{Kind: EventActivate})
	require.NoError(t, err)
	assert.Equal(t, PhaseFetchingStages, state.Phase)

	_, err = transition(state, PipelineEvent{Kind: EventSettled})
	assert.Error(t, err)

	// Failure is legal from anywhere and records the broken collection.
	failed, err := transition(state, PipelineEvent{Kind: EventFailure, Stage: "deals:Discovery"})
	require.NoError(t, err)
	assert.Equal(t, PhaseFailed, failed.Phase)
	assert.Equal(t, "deals:Discovery", failed.FailedKey)
}
