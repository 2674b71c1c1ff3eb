package services

import (
	"context"
	"fmt"
	"time"

	"github.com/RevLensAI/revlens-go/internal/domain/entities/pipeline"
	"github.com/RevLensAI/revlens-go/internal/infrastructure/caching/manager"
	"github.com/RevLensAI/revlens-go/internal/infrastructure/caching/types"
	"github.com/RevLensAI/revlens-go/internal/infrastructure/gateway"
	"github.com/RevLensAI/revlens-go/internal/infrastructure/observability/logging"
)

// OwnerService serves the owner performance and deal health views. Both are
// whole-pipeline aggregates, cached under their own keys with the same
// freshness window as the stage collections.
type OwnerService struct {
	caller Caller
	cache  *manager.Manager
	logger *logging.ChanneledLogger
}

// NewOwnerService creates an owner analytics service.
func NewOwnerService(caller Caller, cache *manager.Manager, logger *logging.ChanneledLogger) *OwnerService {
	return &OwnerService{caller: caller, cache: cache, logger: logger}
}

// Performance returns per-owner aggregates, from cache when fresh. When the
// upstream aggregate endpoint fails, the summaries are computed locally from
// whatever deals are cached so the view degrades instead of blanking.
func (s *OwnerService) Performance(ctx context.Context) ([]pipeline.OwnerSummary, error) {
	key := types.OwnersKey()

	if cached, state := s.cache.Collections.OwnerSummaries(); state == types.StateFresh {
		return cached, nil
	}

	if !s.cache.Collections.BeginFetch(key) {
		cached, _ := s.cache.Collections.OwnerSummaries()
		if cached != nil {
			return cached, nil
		}
		return nil, fmt.Errorf("owner performance unavailable")
	}

	start := time.Now()
	outcome, err := s.caller.Call(ctx, gateway.EndpointOwnerPerformance, gateway.CallOptions{})
	if err == nil && outcome.IsSuccess() {
		var summaries []pipeline.OwnerSummary
		if decodeErr := outcome.Decode(&summaries); decodeErr == nil {
			s.cache.Collections.SetOwnerSummaries(summaries)
			if s.logger != nil {
				s.logger.Cache().Debug("Owner performance fetched", "owners", len(summaries), "duration", time.Since(start))
			}
			return summaries, nil
		}
	}
	s.cache.Collections.AbandonFetch(key)

	if s.logger != nil {
		s.logger.Orchestrator().Warn("Owner performance fetch failed, computing locally", "error", err)
	}
	return s.localPerformance(), nil
}

// localPerformance aggregates owner summaries from every cached deal list.
func (s *OwnerService) localPerformance() []pipeline.OwnerSummary {
	stages, _ := s.cache.Collections.Stages()
	var all []pipeline.Deal
	for _, stage := range stages {
		deals, _ := s.cache.Collections.Deals(stage.StageName)
		all = append(all, deals...)
	}
	return pipeline.SummarizeByOwner(all)
}

// HealthScores returns the per-deal health scores, from cache when fresh.
func (s *OwnerService) HealthScores(ctx context.Context) (map[string]float64, error) {
	key := types.HealthScoresKey()

	if cached, state := s.cache.Collections.HealthScores(); state == types.StateFresh {
		return cached, nil
	}

	if !s.cache.Collections.BeginFetch(key) {
		cached, _ := s.cache.Collections.HealthScores()
		return cached, nil
	}

	outcome, err := s.caller.Call(ctx, gateway.EndpointHealthScores, gateway.CallOptions{})
	if err != nil {
		s.cache.Collections.AbandonFetch(key)
		return nil, err
	}
	if !outcome.IsSuccess() {
		s.cache.Collections.FailFetch(key, outcome.Kind.String())
		return nil, fmt.Errorf("health score fetch failed: %s", outcome.Kind)
	}

	scores := make(map[string]float64)
	if err := outcome.Decode(&scores); err != nil {
		s.cache.Collections.FailFetch(key, err.Error())
		return nil, err
	}
	s.cache.Collections.SetHealthScores(scores)
	return scores, nil
}
