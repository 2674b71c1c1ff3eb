// Package stores implements the in-memory collection stores behind the
// cache manager.
package stores

import (
	"strings"
	"time"

	"github.com/RevLensAI/revlens-go/internal/domain/entities/pipeline"
	"github.com/RevLensAI/revlens-go/internal/infrastructure/caching/types"
	"github.com/RevLensAI/revlens-go/internal/infrastructure/observability/logging"
)

// CollectionsStore holds the pipeline collections and their fetch metadata.
// All state transitions for a collection entry go through this store so the
// loading guard and the failed set stay consistent under concurrent access.
type CollectionsStore struct {
	cache  *types.PipelineCache
	ttl    time.Duration
	now    func() time.Time
	logger *logging.ChanneledLogger
}

// NewCollectionsStore creates a collections store with the given expiry
// window.
func NewCollectionsStore(ttl time.Duration, logger *logging.ChanneledLogger) *CollectionsStore {
	return &CollectionsStore{
		cache:  types.NewPipelineCache(),
		ttl:    ttl,
		now:    time.Now,
		logger: logger,
	}
}

// SetClock overrides the time source. Test hook only.
func (s *CollectionsStore) SetClock(now func() time.Time) {
	s.now = now
}

// State returns the observable lifecycle state for a collection key. A fetched
// entry past the expiry window reports stale, not absent; the data stays
// available for immediate display while a background refresh runs.
func (s *CollectionsStore) State(key string) types.CollectionState {
	s.cache.Mu.RLock()
	defer s.cache.Mu.RUnlock()
	return s.stateLocked(key)
}

func (s *CollectionsStore) stateLocked(key string) types.CollectionState {
	if s.cache.Failed[key] {
		return types.StateFailed
	}
	entry, exists := s.cache.Entries[key]
	if !exists {
		return types.StateAbsent
	}
	if entry.State == types.StateLoading {
		return types.StateLoading
	}
	if entry.Fresh(s.ttl, s.now()) {
		return types.StateFresh
	}
	return types.StateStale
}

// BeginFetch transitions a key to loading and reports whether the caller owns
// the fetch. It refuses when a fetch is already in flight (the in-flight one
// wins) or when the key sits in the failed set; failed keys only re-fetch
// after an explicit ClearFailure.
func (s *CollectionsStore) BeginFetch(key string) bool {
	s.cache.Mu.Lock()
	defer s.cache.Mu.Unlock()

	if s.cache.Failed[key] {
		return false
	}
	if entry, exists := s.cache.Entries[key]; exists && entry.State == types.StateLoading {
		return false
	}

	entry, exists := s.cache.Entries[key]
	if !exists {
		entry = &types.Entry{Key: key}
		s.cache.Entries[key] = entry
	}
	entry.State = types.StateLoading
	entry.LastError = ""
	return true
}

// CompleteFetch records a successful fetch at the current time.
func (s *CollectionsStore) CompleteFetch(key string) {
	s.completeFetchAt(key, s.now())
}

// completeFetchAt is the persistence-hydration variant: derived entries loaded
// from durable storage keep their original fetch time so staleness carries
// across restarts.
func (s *CollectionsStore) completeFetchAt(key string, fetchedAt time.Time) {
	s.cache.Mu.Lock()
	defer s.cache.Mu.Unlock()

	entry, exists := s.cache.Entries[key]
	if !exists {
		entry = &types.Entry{Key: key}
		s.cache.Entries[key] = entry
	}
	entry.State = types.StateFresh
	entry.LastFetchedAt = fetchedAt
	entry.LastError = ""
	delete(s.cache.Failed, key)
}

// FailFetch records a failed fetch and adds the key to the failed set. The
// key stays failed, and no automatic retry happens, until the user explicitly
// refreshes. Any previously cached payload is dropped: a failed collection
// shows empty, never data from before the failure.
func (s *CollectionsStore) FailFetch(key string, reason string) {
	s.cache.Mu.Lock()
	defer s.cache.Mu.Unlock()

	entry, exists := s.cache.Entries[key]
	if !exists {
		entry = &types.Entry{Key: key}
		s.cache.Entries[key] = entry
	}
	entry.State = types.StateFailed
	entry.LastError = reason
	s.cache.Failed[key] = true
	s.dropPayloadLocked(key)

	if s.logger != nil {
		s.logger.Cache().Warn("Collection fetch failed", "key", key, "reason", reason)
	}
}

// dropPayloadLocked clears the cached payload behind a collection key.
func (s *CollectionsStore) dropPayloadLocked(key string) {
	switch key {
	case types.StagesKey():
		s.cache.Stages = nil
		return
	case types.OwnersKey():
		s.cache.OwnerSummaries = nil
		return
	case types.HealthScoresKey():
		s.cache.HealthScores = make(map[string]float64)
		return
	}
	if _, stage, ok := strings.Cut(key, ":"); ok {
		switch key {
		case types.DealsKey(stage):
			delete(s.cache.DealsByStage, stage)
		case types.InsightsKey(stage):
			delete(s.cache.InsightsByStage, stage)
		case types.ActivityKey(stage):
			delete(s.cache.ActivityByStage, stage)
		case types.SignalsKey(stage):
			delete(s.cache.SignalsByStage, stage)
		}
	}
}

// AbandonFetch returns a loading key to its prior observable state without
// touching the failed set. Used when a fetch is superseded by a newer request.
func (s *CollectionsStore) AbandonFetch(key string) {
	s.cache.Mu.Lock()
	defer s.cache.Mu.Unlock()

	entry, exists := s.cache.Entries[key]
	if !exists || entry.State != types.StateLoading {
		return
	}
	if entry.LastFetchedAt.IsZero() {
		delete(s.cache.Entries, key)
		return
	}
	entry.State = types.StateFresh
}

// IsFailed reports whether the key is in the do-not-auto-retry set.
func (s *CollectionsStore) IsFailed(key string) bool {
	s.cache.Mu.RLock()
	defer s.cache.Mu.RUnlock()
	return s.cache.Failed[key]
}

// ClearFailure removes a key from the failed set so the next access may
// fetch again.
func (s *CollectionsStore) ClearFailure(key string) {
	s.cache.Mu.Lock()
	defer s.cache.Mu.Unlock()
	delete(s.cache.Failed, key)
	if entry, exists := s.cache.Entries[key]; exists && entry.State == types.StateFailed {
		delete(s.cache.Entries, key)
	}
}

// Invalidate drops the entry for a key entirely.
func (s *CollectionsStore) Invalidate(key string) {
	s.cache.Mu.Lock()
	defer s.cache.Mu.Unlock()
	delete(s.cache.Entries, key)
	delete(s.cache.Failed, key)
}

// Snapshot returns a copy of every entry with its computed observable state.
func (s *CollectionsStore) Snapshot() []types.Entry {
	s.cache.Mu.RLock()
	defer s.cache.Mu.RUnlock()

	out := make([]types.Entry, 0, len(s.cache.Entries))
	for key, entry := range s.cache.Entries {
		copied := *entry
		copied.State = s.stateLocked(key)
		out = append(out, copied)
	}
	return out
}

// LastFetchedAt returns the recorded fetch time for a key.
func (s *CollectionsStore) LastFetchedAt(key string) (time.Time, bool) {
	s.cache.Mu.RLock()
	defer s.cache.Mu.RUnlock()
	entry, exists := s.cache.Entries[key]
	if !exists || entry.LastFetchedAt.IsZero() {
		return time.Time{}, false
	}
	return entry.LastFetchedAt, true
}

// Stages returns the cached stage list and its state.
func (s *CollectionsStore) Stages() ([]pipeline.Stage, types.CollectionState) {
	s.cache.Mu.RLock()
	defer s.cache.Mu.RUnlock()
	return s.cache.Stages, s.stateLocked(types.StagesKey())
}

// SetStages stores the stage list and marks it fetched.
func (s *CollectionsStore) SetStages(stages []pipeline.Stage) {
	s.cache.Mu.Lock()
	s.cache.Stages = stages
	s.cache.Mu.Unlock()
	s.CompleteFetch(types.StagesKey())
}

// Deals returns the cached deals for a stage and their state.
func (s *CollectionsStore) Deals(stage string) ([]pipeline.Deal, types.CollectionState) {
	s.cache.Mu.RLock()
	defer s.cache.Mu.RUnlock()
	return s.cache.DealsByStage[stage], s.stateLocked(types.DealsKey(stage))
}

// SetDeals stores the deal list for a stage and marks it fetched.
func (s *CollectionsStore) SetDeals(stage string, deals []pipeline.Deal) {
	s.cache.Mu.Lock()
	s.cache.DealsByStage[stage] = deals
	s.cache.Mu.Unlock()
	s.CompleteFetch(types.DealsKey(stage))
}

// Insights returns the cached insight map for a stage and its state.
func (s *CollectionsStore) Insights(stage string) (pipeline.InsightMap, types.CollectionState) {
	s.cache.Mu.RLock()
	defer s.cache.Mu.RUnlock()
	return s.cache.InsightsByStage[stage], s.stateLocked(types.InsightsKey(stage))
}

// SetInsights stores the insight map for a stage at the given fetch time.
func (s *CollectionsStore) SetInsights(stage string, insights pipeline.InsightMap, fetchedAt time.Time) {
	s.cache.Mu.Lock()
	s.cache.InsightsByStage[stage] = insights
	s.cache.Mu.Unlock()
	s.completeFetchAt(types.InsightsKey(stage), fetchedAt)
}

// Activity returns the cached activity-count map for a stage and its state.
func (s *CollectionsStore) Activity(stage string) (pipeline.ActivityMap, types.CollectionState) {
	s.cache.Mu.RLock()
	defer s.cache.Mu.RUnlock()
	return s.cache.ActivityByStage[stage], s.stateLocked(types.ActivityKey(stage))
}

// SetActivity stores the activity-count map for a stage at the given fetch
// time.
func (s *CollectionsStore) SetActivity(stage string, counts pipeline.ActivityMap, fetchedAt time.Time) {
	s.cache.Mu.Lock()
	s.cache.ActivityByStage[stage] = counts
	s.cache.Mu.Unlock()
	s.completeFetchAt(types.ActivityKey(stage), fetchedAt)
}

// Signals returns the cached signal map for a stage and its state.
func (s *CollectionsStore) Signals(stage string) (pipeline.SignalMap, types.CollectionState) {
	s.cache.Mu.RLock()
	defer s.cache.Mu.RUnlock()
	return s.cache.SignalsByStage[stage], s.stateLocked(types.SignalsKey(stage))
}

// SetSignals stores the signal map for a stage at the given fetch time.
func (s *CollectionsStore) SetSignals(stage string, signals pipeline.SignalMap, fetchedAt time.Time) {
	s.cache.Mu.Lock()
	s.cache.SignalsByStage[stage] = signals
	s.cache.Mu.Unlock()
	s.completeFetchAt(types.SignalsKey(stage), fetchedAt)
}

// MergeSignals folds a partial signal batch into the stage's map without
// touching fetch metadata. The caller marks the collection fetched once the
// final batch lands.
func (s *CollectionsStore) MergeSignals(stage string, batch pipeline.SignalMap) {
	s.cache.Mu.Lock()
	defer s.cache.Mu.Unlock()
	existing, exists := s.cache.SignalsByStage[stage]
	if !exists {
		existing = make(pipeline.SignalMap, len(batch))
		s.cache.SignalsByStage[stage] = existing
	}
	for name, tally := range batch {
		existing[name] = tally
	}
}

// OwnerSummaries returns the cached owner performance rows and their state.
func (s *CollectionsStore) OwnerSummaries() ([]pipeline.OwnerSummary, types.CollectionState) {
	s.cache.Mu.RLock()
	defer s.cache.Mu.RUnlock()
	return s.cache.OwnerSummaries, s.stateLocked(types.OwnersKey())
}

// SetOwnerSummaries stores the owner performance rows and marks them fetched.
func (s *CollectionsStore) SetOwnerSummaries(summaries []pipeline.OwnerSummary) {
	s.cache.Mu.Lock()
	s.cache.OwnerSummaries = summaries
	s.cache.Mu.Unlock()
	s.CompleteFetch(types.OwnersKey())
}

// HealthScores returns the cached deal health scores and their state.
func (s *CollectionsStore) HealthScores() (map[string]float64, types.CollectionState) {
	s.cache.Mu.RLock()
	defer s.cache.Mu.RUnlock()
	return s.cache.HealthScores, s.stateLocked(types.HealthScoresKey())
}

// SetHealthScores stores the deal health scores and marks them fetched.
func (s *CollectionsStore) SetHealthScores(scores map[string]float64) {
	s.cache.Mu.Lock()
	s.cache.HealthScores = scores
	s.cache.Mu.Unlock()
	s.CompleteFetch(types.HealthScoresKey())
}

// ClearStage drops every collection tied to a single stage: deals and the
// three derived maps, entries and failures included.
func (s *CollectionsStore) ClearStage(stage string) {
	s.cache.Mu.Lock()
	defer s.cache.Mu.Unlock()

	delete(s.cache.DealsByStage, stage)
	delete(s.cache.InsightsByStage, stage)
	delete(s.cache.ActivityByStage, stage)
	delete(s.cache.SignalsByStage, stage)

	for _, key := range []string{
		types.DealsKey(stage),
		types.InsightsKey(stage),
		types.ActivityKey(stage),
		types.SignalsKey(stage),
	} {
		delete(s.cache.Entries, key)
		delete(s.cache.Failed, key)
	}
}
