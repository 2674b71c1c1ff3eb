// Package pipeline provides domain entities for the deal pipeline:
// funnel stages, deals, and the derived per-deal analytics maps.
package pipeline

import "sort"

// Stage represents a funnel stage descriptor as returned by the upstream
// analytics API. Stages are immutable client-side; the list is re-sorted by
// display order on every fetch.
type Stage struct {
	StageName    string   `json:"stage_name"`
	DisplayOrder int      `json:"display_order"`
	Probability  *float64 `json:"probability"`
	ClosedWon    bool     `json:"closed_won"`
	ClosedLost   bool     `json:"closed_lost"`
}

// IsTerminal reports whether the stage represents a closed outcome.
func (s Stage) IsTerminal() bool {
	return s.ClosedWon || s.ClosedLost
}

// SortStages orders stages by display_order, ascending. Ties keep the
// upstream order (stable sort) since display_order defines the funnel.
func SortStages(stages []Stage) {
	sort.SliceStable(stages, func(i, j int) bool {
		return stages[i].DisplayOrder < stages[j].DisplayOrder
	})
}

// StageNames returns the stage names in slice order.
func StageNames(stages []Stage) []string {
	names := make([]string, 0, len(stages))
	for _, s := range stages {
		names = append(names, s.StageName)
	}
	return names
}

// FindStage returns the stage with the given name, if present.
func FindStage(stages []Stage, name string) (Stage, bool) {
	for _, s := range stages {
		if s.StageName == name {
			return s, true
		}
	}
	return Stage{}, false
}
