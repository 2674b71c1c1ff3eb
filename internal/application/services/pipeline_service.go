package services

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/RevLensAI/revlens-go/internal/domain/entities/pipeline"
	"github.com/RevLensAI/revlens-go/internal/infrastructure/caching/manager"
	"github.com/RevLensAI/revlens-go/internal/infrastructure/caching/types"
	"github.com/RevLensAI/revlens-go/internal/infrastructure/gateway"
	"github.com/RevLensAI/revlens-go/internal/infrastructure/observability/logging"
	"github.com/RevLensAI/revlens-go/internal/infrastructure/persistence/localstore"
	"github.com/RevLensAI/revlens-go/pkg/config"
)

// Durable storage key for the last resolved stage, so a restart lands on
// the stage the user was viewing.
const activeStageKey = "activeStage"

// PipelineService orchestrates the dashboard fetch sequence: stage list,
// deals for the active stage, then the three derived maps. Each activation
// is one run with its own cancellable context; a new activation cancels the
// previous run instead of racing it.
type PipelineService struct {
	caller  Caller
	cache   *manager.Manager
	derived *DerivedService
	local   *localstore.Store
	logger  *logging.ChanneledLogger

	stageListTimeout time.Duration
	dealFetchTimeout time.Duration
	insightDelay     time.Duration
	activityDelay    time.Duration
	signalDelay      time.Duration
	sleep            sleepFn

	mu        sync.Mutex
	state     PipelineState
	cancelRun context.CancelFunc
	// runGen identifies the current run; events from superseded runs are
	// dropped so a cancelled run cannot stomp its successor's phase.
	runGen uint64
	// prevRunDone serializes runs: a new run waits for the cancelled one to
	// unwind so its loading markers are released before the new fetches.
	prevRunDone chan struct{}
	runPending  sync.WaitGroup
}

// NewPipelineService creates the fetch orchestrator with configured timeouts
// and stagger delays.
func NewPipelineService(caller Caller, cache *manager.Manager, derived *DerivedService, local *localstore.Store, logger *logging.ChanneledLogger) *PipelineService {
	return &PipelineService{
		caller:           caller,
		cache:            cache,
		derived:          derived,
		local:            local,
		logger:           logger,
		stageListTimeout: config.StageListTimeout,
		dealFetchTimeout: config.DealFetchTimeout,
		insightDelay:     config.InsightStaggerDelay,
		activityDelay:    config.ActivityStaggerDelay,
		signalDelay:      config.SignalStaggerDelay,
		sleep:            sleepCtx,
		state:            PipelineState{Phase: PhaseIdle},
	}
}

// State returns the current pipeline state.
func (s *PipelineService) State() PipelineState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// setState applies an event through the pure transition function. Events
// from a superseded run are dropped: only the newest run may move the
// observable state. Illegal transitions are logged and dropped; they
// indicate a sequencing bug, not a recoverable runtime condition.
func (s *PipelineService) setState(gen uint64, event PipelineEvent) PipelineState {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.runGen {
		if s.logger != nil {
			s.logger.Orchestrator().Debug("Dropped event from superseded run", "event", string(event.Kind), "phase", string(s.state.Phase))
		}
		return s.state
	}

	next, err := transition(s.state, event)
	if err != nil {
		if s.logger != nil {
			s.logger.Orchestrator().Error("Dropped illegal pipeline event", "event", string(event.Kind), "phase", string(s.state.Phase))
		}
		return s.state
	}

	if s.logger != nil {
		s.logger.Orchestrator().Debug("Pipeline transition", "from", string(s.state.Phase), "to", string(next.Phase), "event", string(event.Kind))
	}
	s.state = next
	return next
}

// Activate starts a pipeline run in the background for the given stage (or
// the resolved default when empty). Any in-flight run is cancelled first;
// the newest request always wins. The run is detached from the caller's
// context lifetime: a run triggered by an HTTP request keeps going after the
// response is written.
func (s *PipelineService) Activate(ctx context.Context, explicitStage string) {
	s.mu.Lock()
	if s.cancelRun != nil {
		s.cancelRun()
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancelRun = cancel
	s.runGen++
	gen := s.runGen
	prevDone := s.prevRunDone
	done := make(chan struct{})
	s.prevRunDone = done
	s.mu.Unlock()

	s.runPending.Add(1)
	go func() {
		defer s.runPending.Done()
		defer close(done)
		defer cancel()
		// Let the cancelled run unwind first so its loading markers are
		// abandoned before this run begins its fetches. The predecessor is
		// already cancelled, so the wait is short; waiting unconditionally
		// keeps the chain intact when this run is itself superseded.
		if prevDone != nil {
			<-prevDone
		}
		if runCtx.Err() != nil {
			return
		}
		s.run(runCtx, gen, explicitStage)
	}()
}

// Wait blocks until the background run started by Activate finishes.
func (s *PipelineService) Wait() {
	s.runPending.Wait()
}

// Stop cancels any in-flight run and waits for it to unwind.
func (s *PipelineService) Stop() {
	s.mu.Lock()
	if s.cancelRun != nil {
		s.cancelRun()
	}
	s.mu.Unlock()
	s.runPending.Wait()
}

// Refresh clears every cached collection for the stage, including failed
// markers and persisted derived maps, then runs the pipeline again. This is
// the only path that re-arms fetching for failed collections. The stage
// list's failure state is always cleared: when the stage list itself failed
// no stage ever resolved, and the refresh must still re-attempt it.
func (s *PipelineService) Refresh(ctx context.Context, stage string) {
	if stage == "" {
		stage = s.State().ActiveStage
	}
	if stage != "" {
		s.cache.RefreshStage(stage)
	} else {
		s.cache.Collections.Invalidate(types.StagesKey())
	}
	s.Activate(ctx, stage)
}

// Run executes one full pipeline sequence synchronously and returns the
// final state. Activate wraps it for background execution; tests call it
// directly.
func (s *PipelineService) Run(ctx context.Context, explicitStage string) PipelineState {
	s.mu.Lock()
	s.runGen++
	gen := s.runGen
	s.mu.Unlock()
	return s.run(ctx, gen, explicitStage)
}

func (s *PipelineService) run(ctx context.Context, gen uint64, explicitStage string) PipelineState {
	start := time.Now()
	s.setState(gen, PipelineEvent{Kind: EventActivate})

	stages, ok := s.fetchStages(ctx, gen)
	if !ok {
		return s.State()
	}
	s.setState(gen, PipelineEvent{Kind: EventStagesLoaded})

	stage, ok := s.resolveStage(explicitStage, stages)
	if !ok {
		s.setState(gen, PipelineEvent{Kind: EventFailure, Stage: types.StagesKey()})
		return s.State()
	}
	s.setState(gen, PipelineEvent{Kind: EventStageResolved, Stage: stage})
	s.rememberStage(stage)

	deals, ok := s.fetchDeals(ctx, gen, stage)
	if !ok {
		return s.State()
	}
	s.setState(gen, PipelineEvent{Kind: EventDealsLoaded})

	s.setState(gen, PipelineEvent{Kind: EventDerivedBegin})
	s.fetchDerived(ctx, stage, pipeline.DealNames(deals))

	final := s.setState(gen, PipelineEvent{Kind: EventSettled})
	if s.logger != nil {
		s.logger.Orchestrator().Info("Pipeline run settled", "stage", stage, "deals", len(deals), "duration", time.Since(start))
	}
	return final
}

// fetchStages returns the stage list, from cache when fresh, fetching
// otherwise. A false return means the run cannot proceed; the failure
// transition has already been applied.
func (s *PipelineService) fetchStages(ctx context.Context, gen uint64) ([]pipeline.Stage, bool) {
	key := types.StagesKey()
	start := time.Now()

	if cached, state := s.cache.Collections.Stages(); state == types.StateFresh {
		if s.logger != nil {
			s.logger.LogCacheOperation("read", key, true, time.Since(start))
		}
		return cached, true
	}
	if s.logger != nil {
		s.logger.LogCacheOperation("read", key, false, time.Since(start))
	}

	if !s.cache.Collections.BeginFetch(key) {
		// Failed keys wait for an explicit refresh; a loading key means an
		// older fetch has not released the key yet and this run backs off.
		if s.cache.Collections.IsFailed(key) {
			s.setState(gen, PipelineEvent{Kind: EventFailure, Stage: key})
		} else {
			s.setState(gen, PipelineEvent{Kind: EventReset})
		}
		return nil, false
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.stageListTimeout)
	defer cancel()

	outcome, err := s.caller.Call(fetchCtx, gateway.EndpointStages, gateway.CallOptions{})
	if err != nil {
		return nil, s.handleFetchError(ctx, gen, key, err)
	}

	switch outcome.Kind {
	case gateway.OutcomeSuccess:
		var stages []pipeline.Stage
		if err := outcome.Decode(&stages); err != nil {
			s.cache.Collections.FailFetch(key, err.Error())
			s.setState(gen, PipelineEvent{Kind: EventFailure, Stage: key})
			return nil, false
		}
		pipeline.SortStages(stages)
		s.cache.Collections.SetStages(stages)
		return stages, true
	case gateway.OutcomeRetryableConflict:
		// A newer request superseded this one upstream. Silent no-op: fall
		// back to whatever the cache holds, stale included.
		s.cache.Collections.AbandonFetch(key)
		if cached, _ := s.cache.Collections.Stages(); len(cached) > 0 {
			return cached, true
		}
		s.setState(gen, PipelineEvent{Kind: EventReset})
		return nil, false
	default:
		s.cache.Collections.FailFetch(key, outcome.Kind.String())
		s.setState(gen, PipelineEvent{Kind: EventFailure, Stage: key})
		return nil, false
	}
}

// resolveStage picks the active stage: an explicit request wins, then the
// previously viewed stage, then the first stage in display order. Requested
// stages that no longer exist fall through to the next rule.
func (s *PipelineService) resolveStage(explicit string, stages []pipeline.Stage) (string, bool) {
	if explicit != "" {
		if _, exists := pipeline.FindStage(stages, explicit); exists {
			return explicit, true
		}
		if s.logger != nil {
			s.logger.Orchestrator().Warn("Requested stage no longer exists, falling back", "stage", explicit)
		}
	}

	if previous, found := s.local.Get(activeStageKey); found && previous != "" {
		if _, exists := pipeline.FindStage(stages, previous); exists {
			return previous, true
		}
	}

	if len(stages) > 0 {
		return stages[0].StageName, true
	}
	return "", false
}

func (s *PipelineService) rememberStage(stage string) {
	s.local.Set(activeStageKey, stage)
}

// LastViewedStage returns the stage persisted by the previous run, if any.
func (s *PipelineService) LastViewedStage() string {
	stage, _ := s.local.Get(activeStageKey)
	return stage
}

// fetchDeals returns the deal list for the stage, from cache when fresh.
func (s *PipelineService) fetchDeals(ctx context.Context, gen uint64, stage string) ([]pipeline.Deal, bool) {
	key := types.DealsKey(stage)
	start := time.Now()

	if cached, state := s.cache.Collections.Deals(stage); state == types.StateFresh {
		if s.logger != nil {
			s.logger.LogCacheOperation("read", key, true, time.Since(start))
		}
		return cached, true
	}
	if s.logger != nil {
		s.logger.LogCacheOperation("read", key, false, time.Since(start))
	}

	if !s.cache.Collections.BeginFetch(key) {
		if s.cache.Collections.IsFailed(key) {
			s.setState(gen, PipelineEvent{Kind: EventFailure, Stage: key})
		} else {
			s.setState(gen, PipelineEvent{Kind: EventReset})
		}
		return nil, false
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.dealFetchTimeout)
	defer cancel()

	outcome, err := s.caller.Call(fetchCtx, gateway.EndpointDealsByStage, gateway.CallOptions{
		Query: url.Values{"stage": []string{stage}},
	})
	if err != nil {
		return nil, s.handleFetchError(ctx, gen, key, err)
	}

	switch outcome.Kind {
	case gateway.OutcomeSuccess:
		var deals []pipeline.Deal
		if err := outcome.Decode(&deals); err != nil {
			s.cache.Collections.FailFetch(key, err.Error())
			s.setState(gen, PipelineEvent{Kind: EventFailure, Stage: key})
			return nil, false
		}
		s.cache.Collections.SetDeals(stage, deals)
		return deals, true
	case gateway.OutcomeRetryableConflict:
		s.cache.Collections.AbandonFetch(key)
		if cached, _ := s.cache.Collections.Deals(stage); cached != nil {
			return cached, true
		}
		s.setState(gen, PipelineEvent{Kind: EventReset})
		return nil, false
	default:
		s.cache.Collections.FailFetch(key, outcome.Kind.String())
		s.setState(gen, PipelineEvent{Kind: EventFailure, Stage: key})
		return nil, false
	}
}

// handleFetchError distinguishes supersession from real failure. A cancelled
// run abandons quietly; a timeout or transport failure marks the collection
// failed and fails the run. Always returns false.
func (s *PipelineService) handleFetchError(runCtx context.Context, gen uint64, key string, err error) bool {
	if runCtx.Err() != nil && errors.Is(err, context.Canceled) {
		s.cache.Collections.AbandonFetch(key)
		s.setState(gen, PipelineEvent{Kind: EventReset})
		return false
	}
	s.cache.Collections.FailFetch(key, err.Error())
	s.setState(gen, PipelineEvent{Kind: EventFailure, Stage: key})
	return false
}

// fetchDerived runs the three derived fetches concurrently with staggered
// starts. The stagger spreads upstream load; the order (insights, activity,
// signals) matches how quickly each map becomes useful on screen. A derived
// failure marks its own collection failed but never fails the run: the
// deals are already on screen and the other maps still resolve.
func (s *PipelineService) fetchDerived(ctx context.Context, stage string, dealNames []string) {
	if len(dealNames) == 0 {
		s.cache.StoreInsights(stage, pipeline.InsightMap{})
		s.cache.StoreActivity(stage, pipeline.ActivityMap{})
		s.cache.StoreSignals(stage, pipeline.SignalMap{})
		return
	}

	var wg sync.WaitGroup
	launch := func(key string, delay time.Duration, fetch func(context.Context, string, []string) error) {
		if s.cache.Collections.State(key) == types.StateFresh {
			return
		}
		if !s.cache.Collections.BeginFetch(key) {
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.sleep(ctx, delay); err != nil {
				s.cache.Collections.AbandonFetch(key)
				return
			}
			err := fetch(ctx, stage, dealNames)
			switch {
			case err == nil:
				// fetch recorded completion through the cache manager
			case errors.Is(err, errSuperseded) || errors.Is(err, context.Canceled):
				s.cache.Collections.AbandonFetch(key)
			default:
				s.cache.Collections.FailFetch(key, err.Error())
			}
		}()
	}

	launch(types.InsightsKey(stage), s.insightDelay, s.derived.FetchInsights)
	launch(types.ActivityKey(stage), s.activityDelay, s.derived.FetchActivity)
	launch(types.SignalsKey(stage), s.signalDelay, s.derived.FetchSignals)

	wg.Wait()
}
