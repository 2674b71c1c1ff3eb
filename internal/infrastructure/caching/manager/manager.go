// Package manager provides the unified cache interface over the collection
// and derived stores.
package manager

import (
	"sort"
	"time"

	"github.com/RevLensAI/revlens-go/internal/domain/entities/pipeline"
	"github.com/RevLensAI/revlens-go/internal/infrastructure/caching/stores"
	"github.com/RevLensAI/revlens-go/internal/infrastructure/caching/types"
	"github.com/RevLensAI/revlens-go/internal/infrastructure/observability/logging"
	"github.com/RevLensAI/revlens-go/internal/infrastructure/persistence/localstore"
	"github.com/RevLensAI/revlens-go/pkg/config"
)

// Manager coordinates the in-memory collection store and the durable derived
// store. Orchestration code talks to the manager, never to the stores
// directly.
type Manager struct {
	Collections *stores.CollectionsStore
	Derived     *stores.DerivedStore

	logger *logging.ChanneledLogger
}

// NewManager creates the cache manager with the configured expiry window and
// hydrates persisted derived maps into memory.
func NewManager(local *localstore.Store, logger *logging.ChanneledLogger) *Manager {
	m := &Manager{
		Collections: stores.NewCollectionsStore(config.CollectionTTL, logger),
		Derived:     stores.NewDerivedStore(local, logger),
		logger:      logger,
	}
	return m
}

// HydrateStage loads any persisted derived maps for a stage into the
// collection store, preserving their original fetch times. Entries past the
// expiry window surface as stale, which is exactly what a restart should
// look like: old data shown immediately, refresh triggered behind it.
func (m *Manager) HydrateStage(stage string) {
	start := time.Now()
	hydrated := 0

	if insights, fetchedAt, found := m.Derived.LoadInsights(stage); found {
		m.Collections.SetInsights(stage, insights, fetchedAt)
		hydrated++
	}
	if counts, fetchedAt, found := m.Derived.LoadActivity(stage); found {
		m.Collections.SetActivity(stage, counts, fetchedAt)
		hydrated++
	}
	if signals, fetchedAt, found := m.Derived.LoadSignals(stage); found {
		m.Collections.SetSignals(stage, signals, fetchedAt)
		hydrated++
	}

	if hydrated > 0 && m.logger != nil {
		m.logger.Cache().Info("Hydrated persisted derived maps", "stage", stage, "maps", hydrated, "duration", time.Since(start))
	}
}

// StoreInsights caches and persists the insight map for a stage.
func (m *Manager) StoreInsights(stage string, insights pipeline.InsightMap) {
	now := time.Now()
	m.Collections.SetInsights(stage, insights, now)
	m.Derived.SaveInsights(stage, insights, now)
}

// StoreActivity caches and persists the activity-count map for a stage.
func (m *Manager) StoreActivity(stage string, counts pipeline.ActivityMap) {
	now := time.Now()
	m.Collections.SetActivity(stage, counts, now)
	m.Derived.SaveActivity(stage, counts, now)
}

// StoreSignals caches and persists the full signal map for a stage.
func (m *Manager) StoreSignals(stage string, signals pipeline.SignalMap) {
	now := time.Now()
	m.Collections.SetSignals(stage, signals, now)
	m.Derived.SaveSignals(stage, signals, now)
}

// Status is a point-in-time view of the cache for the admin surface.
type Status struct {
	Entries []types.Entry `json:"entries"`
	Failed  []string      `json:"failed"`
}

// GetStatus snapshots every collection entry and the failed set.
func (m *Manager) GetStatus() Status {
	entries := m.Collections.Snapshot()
	var failed []string
	for _, entry := range entries {
		if entry.State == types.StateFailed {
			failed = append(failed, entry.Key)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	sort.Strings(failed)
	return Status{Entries: entries, Failed: failed}
}

// PurgeDerived drops every persisted derived map, all stages included. The
// in-memory copies age out through the expiry window; this clears what would
// otherwise re-hydrate after a restart.
func (m *Manager) PurgeDerived() {
	m.Derived.ClearAll()
	if m.logger != nil {
		m.logger.Cache().Info("Persisted derived maps purged")
	}
}

// RefreshStage clears every cached and persisted collection for a stage,
// failed markers included. This is the explicit user action that re-arms
// fetching for keys parked in the failed set.
func (m *Manager) RefreshStage(stage string) {
	m.Collections.ClearStage(stage)
	m.Derived.ClearStage(stage)
	m.Collections.Invalidate(types.StagesKey())

	if m.logger != nil {
		m.logger.Cache().Info("Stage cache cleared for refresh", "stage", stage)
	}
}
