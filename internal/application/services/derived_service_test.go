package services

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
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

// recordedCall captures one upstream call made through the fake caller.
type recordedCall struct {
	Endpoint    gateway.Endpoint
	Opts        gateway.CallOptions
	Deadline    time.Time
	HasDeadline bool
}

// fakeCaller scripts upstream responses per endpoint. Safe for the
// concurrent derived fetches.
type fakeCaller struct {
	handler func(ctx context.Context, endpoint gateway.Endpoint, opts gateway.CallOptions) (gateway.Outcome, error)

	mu    sync.Mutex
	calls []recordedCall
}

func (f *fakeCaller) Call(ctx context.Context, endpoint gateway.Endpoint, opts gateway.CallOptions) (gateway.Outcome, error) {
	deadline, hasDeadline := ctx.Deadline()
	f.mu.Lock()
	f.calls = append(f.calls, recordedCall{Endpoint: endpoint, Opts: opts, Deadline: deadline, HasDeadline: hasDeadline})
	f.mu.Unlock()
	return f.handler(ctx, endpoint, opts)
}

func (f *fakeCaller) callsTo(endpoint gateway.Endpoint) []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recordedCall
	for _, c := range f.calls {
		if c.Endpoint == endpoint {
			out = append(out, c)
		}
	}
	return out
}

func successOutcome(t *testing.T, v any) gateway.Outcome {
	t.Helper()
	body, err := json.Marshal(v)
	require.NoError(t, err)
	return gateway.Outcome{Kind: gateway.OutcomeSuccess, StatusCode: 200, Body: body}
}

func statusOutcome(kind gateway.OutcomeKind, status int) gateway.Outcome {
	return gateway.Outcome{Kind: kind, StatusCode: status}
}

func newTestCache(t *testing.T) (*manager.Manager, *localstore.Store) {
	t.Helper()
	store := localstore.New(filepath.Join(t.TempDir(), "test.db"), nil)
	t.Cleanup(func() { store.Close() })
	return manager.NewManager(store, nil), store
}

// requestedNames extracts the dealNames payload from a recorded call.
func requestedNames(t *testing.T, c recordedCall) []string {
	t.Helper()
	req, ok := c.Opts.Body.(derivedRequest)
	require.True(t, ok, "derived calls carry a derivedRequest body")
	return req.DealNames
}

func TestFetchSignalsBatching(t *testing.T) {
	cache, _ := newTestCache(t)

	names := make([]string, 23)
	for i := range names {
		names[i] = fmt.Sprintf("Deal %02d", i)
	}

	caller := &fakeCaller{handler: func(_ context.Context, _ gateway.Endpoint, opts gateway.CallOptions) (gateway.Outcome, error) {
		req := opts.Body.(derivedRequest)
		batch := make(pipeline.SignalMap, len(req.DealNames))
		for _, name := range req.DealNames {
			batch[name] = pipeline.SignalTally{Positive: 1}
		}
		out, _ := json.Marshal(batch)
		return gateway.Outcome{Kind: gateway.OutcomeSuccess, StatusCode: 200, Body: out}, nil
	}}

	var pauses []time.Duration
	svc := NewDerivedService(caller, cache, nil)
	svc.batchSize = 10
	svc.batchPause = 500 * time.Millisecond
	svc.sleep = func(_ context.Context, d time.Duration) error {
		pauses = append(pauses, d)
		return nil
	}

	require.NoError(t, svc.FetchSignals(context.Background(), "Discovery", names))

	calls := caller.callsTo(gateway.EndpointSignalsGroup)
	require.Len(t, calls, 3, "23 deals at batch size 10 means 3 calls")
	assert.Len(t, requestedNames(t, calls[0]), 10)
	assert.Len(t, requestedNames(t, calls[1]), 10)
	assert.Len(t, requestedNames(t, calls[2]), 3)

	// A pause before every batch except the first.
	require.Len(t, pauses, 2)
	assert.Equal(t, 500*time.Millisecond, pauses[0])
	assert.Equal(t, 500*time.Millisecond, pauses[1])

	signals, _ := cache.Collections.Signals("Discovery")
	assert.Len(t, signals, 23, "all batches merge into one map")
}

func TestFetchSignalsSingleBatchHasNoPause(t *testing.T) {
	cache, _ := newTestCache(t)
	caller := &fakeCaller{handler: func(context.Context, gateway.Endpoint, gateway.CallOptions) (gateway.Outcome, error) {
		return gateway.Outcome{Kind: gateway.OutcomeSuccess, StatusCode: 200, Body: []byte(`{}`)}, nil
	}}

	svc := NewDerivedService(caller, cache, nil)
	paused := false
	svc.sleep = func(context.Context, time.Duration) error {
		paused = true
		return nil
	}

	require.NoError(t, svc.FetchSignals(context.Background(), "Discovery", []string{"Acme Expansion"}))
	assert.False(t, paused)
}

func TestFetchSignalsConflictAbandonsQuietly(t *testing.T) {
	cache, _ := newTestCache(t)
	caller := &fakeCaller{handler: func(context.Context, gateway.Endpoint, gateway.CallOptions) (gateway.Outcome, error) {
		return statusOutcome(gateway.OutcomeRetryableConflict, 409), nil
	}}

	svc := NewDerivedService(caller, cache, nil)
	svc.sleep = func(context.Context, time.Duration) error { return nil }

	err := svc.FetchSignals(context.Background(), "Discovery", []string{"Acme Expansion"})
	assert.ErrorIs(t, err, errSuperseded)

	_, state := cache.Collections.Signals("Discovery")
	assert.NotEqual(t, types.StateFailed, state, "a superseded fetch is not a failure")
}

func TestFetchInsightsFillsUnevaluatedDeals(t *testing.T) {
	cache, _ := newTestCache(t)
	caller := &fakeCaller{handler: func(context.Context, gateway.Endpoint, gateway.CallOptions) (gateway.Outcome, error) {
		return successOutcome(t, pipeline.InsightMap{
			"Acme Expansion": {PricingConcern: pipeline.TriTrue, NoDecisionMaker: pipeline.TriFalse, CompetitorInPlay: pipeline.TriFalse},
		}), nil
	}}

	svc := NewDerivedService(caller, cache, nil)
	require.NoError(t, svc.FetchInsights(context.Background(), "Discovery", []string{"Acme Expansion", "Globex Renewal"}))

	insights, state := cache.Collections.Insights("Discovery")
	assert.Equal(t, types.StateFresh, state)
	require.Len(t, insights, 2)
	assert.Equal(t, pipeline.TriTrue, insights["Acme Expansion"].PricingConcern)
	assert.Equal(t, pipeline.NoInsightData(), insights["Globex Renewal"], "unevaluated deals get N/A flags, not false")
}

func TestFetchActivityKeepsUnknownCountsUnknown(t *testing.T) {
	cache, _ := newTestCache(t)
	caller := &fakeCaller{handler: func(context.Context, gateway.Endpoint, gateway.CallOptions) (gateway.Outcome, error) {
		return successOutcome(t, map[string]any{"Acme Expansion": 4}), nil
	}}

	svc := NewDerivedService(caller, cache, nil)
	require.NoError(t, svc.FetchActivity(context.Background(), "Discovery", []string{"Acme Expansion", "Globex Renewal"}))

	counts, _ := cache.Collections.Activity("Discovery")
	assert.Equal(t, pipeline.ActivityCount{Count: 4, Known: true}, counts["Acme Expansion"])
	assert.False(t, counts["Globex Renewal"].Known)
}

func TestDerivedMapsPersistAcrossRestart(t *testing.T) {
	cache, store := newTestCache(t)

	cache.StoreInsights("Discovery", pipeline.InsightMap{"Acme Expansion": pipeline.NoInsightData()})
	cache.StoreActivity("Discovery", pipeline.ActivityMap{"Acme Expansion": {Count: 2, Known: true}})
	cache.StoreSignals("Discovery", pipeline.SignalMap{"Acme Expansion": {StrongPositive: 1}})

	_, found := store.Get(types.DurableInsightsKey("Discovery"))
	assert.True(t, found)

	// A second manager over the same store simulates a restart.
	reborn := manager.NewManager(store, nil)
	reborn.HydrateStage("Discovery")

	insights, _ := reborn.Collections.Insights("Discovery")
	assert.Contains(t, insights, "Acme Expansion")
	counts, _ := reborn.Collections.Activity("Discovery")
	assert.Equal(t, 2, counts["Acme Expansion"].Count)
	signals, _ := reborn.Collections.Signals("Discovery")
	assert.Equal(t, 1, signals["Acme Expansion"].StrongPositive)
}

func TestPurgeDropsPersistedDerivedMapsForAllStages(t *testing.T) {
	cache, store := newTestCache(t)

	cache.StoreInsights("Discovery", pipeline.InsightMap{"Acme Expansion": pipeline.NoInsightData()})
	cache.StoreSignals("Negotiation", pipeline.SignalMap{"Globex Renewal": {Positive: 3}})

	cache.PurgeDerived()

	_, found := store.Get(types.DurableInsightsKey("Discovery"))
	assert.False(t, found)
	_, found = store.Get(types.DurableSignalsKey("Negotiation"))
	assert.False(t, found)

	// Nothing re-hydrates after a restart.
	reborn := manager.NewManager(store, nil)
	reborn.HydrateStage("Discovery")
	_, state := reborn.Collections.Insights("Discovery")
	assert.Equal(t, types.StateAbsent, state)
}
