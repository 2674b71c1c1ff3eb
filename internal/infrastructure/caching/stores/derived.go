package stores

import (
	"encoding/json"
	"time"

	"github.com/RevLensAI/revlens-go/internal/domain/entities/pipeline"
	"github.com/RevLensAI/revlens-go/internal/infrastructure/caching/types"
	"github.com/RevLensAI/revlens-go/internal/infrastructure/observability/logging"
	"github.com/RevLensAI/revlens-go/internal/infrastructure/persistence/localstore"
)

// derivedEnvelope wraps a persisted derived map with its fetch time so
// staleness carries across restarts.
type derivedEnvelope struct {
	Data          json.RawMessage `json:"data"`
	LastFetchedAt time.Time       `json:"lastFetchedAt"`
}

// DerivedStore persists the per-stage derived maps (insights, activity
// counts, signals) to durable storage and hydrates them back on startup.
type DerivedStore struct {
	local  *localstore.Store
	logger *logging.ChanneledLogger
}

// NewDerivedStore creates a derived store over the given local store.
func NewDerivedStore(local *localstore.Store, logger *logging.ChanneledLogger) *DerivedStore {
	return &DerivedStore{local: local, logger: logger}
}

// SaveInsights persists the insight map for a stage.
func (s *DerivedStore) SaveInsights(stage string, insights pipeline.InsightMap, fetchedAt time.Time) {
	s.save(types.DurableInsightsKey(stage), insights, fetchedAt)
}

// SaveActivity persists the activity-count map for a stage.
func (s *DerivedStore) SaveActivity(stage string, counts pipeline.ActivityMap, fetchedAt time.Time) {
	s.save(types.DurableActivityKey(stage), counts, fetchedAt)
}

// SaveSignals persists the signal map for a stage.
func (s *DerivedStore) SaveSignals(stage string, signals pipeline.SignalMap, fetchedAt time.Time) {
	s.save(types.DurableSignalsKey(stage), signals, fetchedAt)
}

func (s *DerivedStore) save(key string, data any, fetchedAt time.Time) {
	payload, err := json.Marshal(data)
	if err != nil {
		if s.logger != nil {
			s.logger.Cache().Warn("Failed to encode derived map for persistence", "key", key, "error", err)
		}
		return
	}
	envelope, err := json.Marshal(derivedEnvelope{Data: payload, LastFetchedAt: fetchedAt})
	if err != nil {
		return
	}
	s.local.Set(key, string(envelope))
}

// LoadInsights reads the persisted insight map for a stage.
func (s *DerivedStore) LoadInsights(stage string) (pipeline.InsightMap, time.Time, bool) {
	var insights pipeline.InsightMap
	fetchedAt, found := s.load(types.DurableInsightsKey(stage), &insights)
	return insights, fetchedAt, found
}

// LoadActivity reads the persisted activity-count map for a stage.
func (s *DerivedStore) LoadActivity(stage string) (pipeline.ActivityMap, time.Time, bool) {
	var counts pipeline.ActivityMap
	fetchedAt, found := s.load(types.DurableActivityKey(stage), &counts)
	return counts, fetchedAt, found
}

// LoadSignals reads the persisted signal map for a stage.
func (s *DerivedStore) LoadSignals(stage string) (pipeline.SignalMap, time.Time, bool) {
	var signals pipeline.SignalMap
	fetchedAt, found := s.load(types.DurableSignalsKey(stage), &signals)
	return signals, fetchedAt, found
}

func (s *DerivedStore) load(key string, into any) (time.Time, bool) {
	raw, found := s.local.Get(key)
	if !found {
		return time.Time{}, false
	}
	var envelope derivedEnvelope
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		if s.logger != nil {
			s.logger.Cache().Warn("Discarding corrupt persisted derived map", "key", key, "error", err)
		}
		s.local.Delete(key)
		return time.Time{}, false
	}
	if err := json.Unmarshal(envelope.Data, into); err != nil {
		if s.logger != nil {
			s.logger.Cache().Warn("Discarding corrupt persisted derived map", "key", key, "error", err)
		}
		s.local.Delete(key)
		return time.Time{}, false
	}
	return envelope.LastFetchedAt, true
}

// ClearStage removes every persisted derived map for a stage.
func (s *DerivedStore) ClearStage(stage string) {
	s.local.Delete(types.DurableInsightsKey(stage))
	s.local.Delete(types.DurableActivityKey(stage))
	s.local.Delete(types.DurableSignalsKey(stage))
}

// ClearAll removes the persisted derived maps for every stage. Nothing
// re-hydrates on the next restart until fresh fetches land.
func (s *DerivedStore) ClearAll() {
	s.local.DeletePrefix(types.DurableInsightsKey(""))
	s.local.DeletePrefix(types.DurableActivityKey(""))
	s.local.DeletePrefix(types.DurableSignalsKey(""))
}
