package services

import (
	"context"
	"fmt"
	"time"

	"github.com/RevLensAI/revlens-go/internal/domain/entities/pipeline"
	"github.com/RevLensAI/revlens-go/internal/infrastructure/caching/manager"
	"github.com/RevLensAI/revlens-go/internal/infrastructure/gateway"
	"github.com/RevLensAI/revlens-go/internal/infrastructure/observability/logging"
	"github.com/RevLensAI/revlens-go/pkg/config"
)

// Caller issues classified calls against the upstream analytics API. The
// gateway client is the production implementation.
type Caller interface {
	Call(ctx context.Context, endpoint gateway.Endpoint, opts gateway.CallOptions) (gateway.Outcome, error)
}

// sleepFn pauses for d or returns early with the context error. Injectable
// so tests never wait on real timers.
type sleepFn func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// errSuperseded marks a fetch abandoned because a newer request won. It is
// a control-flow signal, never a user-facing failure.
var errSuperseded = fmt.Errorf("fetch superseded by a newer request")

// DerivedService fetches the three per-stage derived maps: conversation
// insights, activity counts and signal tallies. Results are cached and
// persisted through the cache manager.
type DerivedService struct {
	caller Caller
	cache  *manager.Manager
	logger *logging.ChanneledLogger

	sleep      sleepFn
	batchSize  int
	batchPause time.Duration
}

// NewDerivedService creates a derived analytics service with the configured
// signal batching parameters.
func NewDerivedService(caller Caller, cache *manager.Manager, logger *logging.ChanneledLogger) *DerivedService {
	return &DerivedService{
		caller:     caller,
		cache:      cache,
		logger:     logger,
		sleep:      sleepCtx,
		batchSize:  config.SignalBatchSize,
		batchPause: config.SignalBatchPause,
	}
}

// derivedRequest is the upstream payload for the bulk derived endpoints.
type derivedRequest struct {
	Stage     string   `json:"stage"`
	DealNames []string `json:"dealNames"`
}

// FetchInsights loads the insight flags for the given deals. Deals the
// upstream did not evaluate are filled with the not-evaluated flag set so a
// missing entry never renders as a hard false.
func (s *DerivedService) FetchInsights(ctx context.Context, stage string, dealNames []string) error {
	outcome, err := s.caller.Call(ctx, gateway.EndpointDealInsights, gateway.CallOptions{
		Method: "POST",
		Body:   derivedRequest{Stage: stage, DealNames: dealNames},
	})
	if err != nil {
		return err
	}

	switch outcome.Kind {
	case gateway.OutcomeSuccess:
		insights := make(pipeline.InsightMap)
		if err := outcome.Decode(&insights); err != nil {
			return err
		}
		for _, name := range dealNames {
			if _, evaluated := insights[name]; !evaluated {
				insights[name] = pipeline.NoInsightData()
			}
		}
		s.cache.StoreInsights(stage, insights)
		return nil
	case gateway.OutcomeRetryableConflict:
		return errSuperseded
	default:
		return fmt.Errorf("insight fetch failed: %s (%d)", outcome.Kind, outcome.StatusCode)
	}
}

// FetchActivity loads the activity counts for the given deals. Unreported
// deals stay unknown rather than defaulting to zero.
func (s *DerivedService) FetchActivity(ctx context.Context, stage string, dealNames []string) error {
	outcome, err := s.caller.Call(ctx, gateway.EndpointActivityCount, gateway.CallOptions{
		Method: "POST",
		Body:   derivedRequest{Stage: stage, DealNames: dealNames},
	})
	if err != nil {
		return err
	}

	switch outcome.Kind {
	case gateway.OutcomeSuccess:
		counts := make(pipeline.ActivityMap)
		if err := outcome.Decode(&counts); err != nil {
			return err
		}
		for _, name := range dealNames {
			if _, reported := counts[name]; !reported {
				counts[name] = pipeline.ActivityCount{}
			}
		}
		s.cache.StoreActivity(stage, counts)
		return nil
	case gateway.OutcomeRetryableConflict:
		return errSuperseded
	default:
		return fmt.Errorf("activity fetch failed: %s (%d)", outcome.Kind, outcome.StatusCode)
	}
}

// FetchSignals loads the signal tallies for the given deals in batches,
// pausing between batches. The batching is backpressure for the upstream:
// one oversized request per stage caused the timeouts this replaces. Each
// batch merges into the cache as it lands so partial results display; the
// full map persists once the last batch completes.
func (s *DerivedService) FetchSignals(ctx context.Context, stage string, dealNames []string) error {
	start := time.Now()
	merged := make(pipeline.SignalMap, len(dealNames))

	for i := 0; i < len(dealNames); i += s.batchSize {
		if i > 0 {
			if err := s.sleep(ctx, s.batchPause); err != nil {
				return err
			}
		}

		end := i + s.batchSize
		if end > len(dealNames) {
			end = len(dealNames)
		}
		chunk := dealNames[i:end]

		outcome, err := s.caller.Call(ctx, gateway.EndpointSignalsGroup, gateway.CallOptions{
			Method: "POST",
			Body:   derivedRequest{Stage: stage, DealNames: chunk},
		})
		if err != nil {
			return err
		}

		switch outcome.Kind {
		case gateway.OutcomeSuccess:
			batch := make(pipeline.SignalMap)
			if err := outcome.Decode(&batch); err != nil {
				return err
			}
			for name, tally := range batch {
				merged[name] = tally
			}
			s.cache.Collections.MergeSignals(stage, batch)
		case gateway.OutcomeRetryableConflict:
			return errSuperseded
		default:
			return fmt.Errorf("signal fetch failed: %s (%d)", outcome.Kind, outcome.StatusCode)
		}
	}

	s.cache.StoreSignals(stage, merged)
	if s.logger != nil {
		s.logger.Orchestrator().Debug("Signal fetch completed", "stage", stage, "deals", len(dealNames), "duration", time.Since(start))
	}
	return nil
}
