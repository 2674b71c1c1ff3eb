// Package types defines collection cache data structures.
package types

import (
	"sync"
	"time"

	"github.com/RevLensAI/revlens-go/internal/domain/entities/pipeline"
)

// CollectionState is the lifecycle state of a named collection.
type CollectionState string

const (
	StateAbsent  CollectionState = "absent"
	StateLoading CollectionState = "loading"
	StateFresh   CollectionState = "fresh"
	StateStale   CollectionState = "stale"
	StateFailed  CollectionState = "failed"
)

// Collection keys. Each logical dataset the cache manages is identified by
// one of these.
func StagesKey() string                { return "stages" }
func DealsKey(stage string) string     { return "deals:" + stage }
func InsightsKey(stage string) string  { return "insights:" + stage }
func ActivityKey(stage string) string  { return "activityCounts:" + stage }
func SignalsKey(stage string) string   { return "signals:" + stage }
func OwnersKey() string                { return "owners" }
func HealthScoresKey() string          { return "healthScores" }
func TranscriptKey(deal string) string { return "transcript:" + deal }

// Durable storage keys for the persisted derived maps, format
// "<kind>_<stageName>".
func DurableInsightsKey(stage string) string { return "insights_" + stage }
func DurableActivityKey(stage string) string { return "activityCounts_" + stage }
func DurableSignalsKey(stage string) string  { return "signals_" + stage }

// Entry tracks fetch metadata for one named collection.
type Entry struct {
	Key           string          `json:"key"`
	State         CollectionState `json:"state"`
	LastFetchedAt time.Time       `json:"lastFetchedAt"`
	LastError     string          `json:"lastError,omitempty"`
}

// Fresh reports whether the entry was fetched within the expiry window.
func (e *Entry) Fresh(ttl time.Duration, now time.Time) bool {
	if e == nil || e.LastFetchedAt.IsZero() {
		return false
	}
	return now.Sub(e.LastFetchedAt) <= ttl
}

// PipelineCache holds every collection for the dashboard views along with
// per-collection fetch metadata and the do-not-auto-retry set.
type PipelineCache struct {
	Stages          []pipeline.Stage
	DealsByStage    map[string][]pipeline.Deal
	InsightsByStage map[string]pipeline.InsightMap
	ActivityByStage map[string]pipeline.ActivityMap
	SignalsByStage  map[string]pipeline.SignalMap
	OwnerSummaries  []pipeline.OwnerSummary
	HealthScores    map[string]float64

	Entries map[string]*Entry
	Failed  map[string]bool

	Mu sync.RWMutex
}

// NewPipelineCache creates an empty pipeline cache.
func NewPipelineCache() *PipelineCache {
	return &PipelineCache{
		DealsByStage:    make(map[string][]pipeline.Deal),
		InsightsByStage: make(map[string]pipeline.InsightMap),
		ActivityByStage: make(map[string]pipeline.ActivityMap),
		SignalsByStage:  make(map[string]pipeline.SignalMap),
		HealthScores:    make(map[string]float64),
		Entries:         make(map[string]*Entry),
		Failed:          make(map[string]bool),
	}
}
