package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// TriState is a three-valued flag: evaluated true, evaluated false, or not
// evaluated ("N/A"). The distinction between false and N/A is load-bearing;
// collapsing them is a correctness bug.
type TriState int

const (
	TriNA TriState = iota
	TriFalse
	TriTrue
)

func (t TriState) String() string {
	switch t {
	case TriTrue:
		return "true"
	case TriFalse:
		return "false"
	default:
		return "N/A"
	}
}

// MarshalJSON encodes TriTrue/TriFalse as JSON booleans and TriNA as the
// string sentinel "N/A".
func (t TriState) MarshalJSON() ([]byte, error) {
	switch t {
	case TriTrue:
		return []byte("true"), nil
	case TriFalse:
		return []byte("false"), nil
	default:
		return []byte(`"N/A"`), nil
	}
}

// UnmarshalJSON accepts a JSON boolean, the "N/A" sentinel, or null
// (treated as not evaluated).
func (t *TriState) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch string(data) {
	case "true":
		*t = TriTrue
	case "false":
		*t = TriFalse
	case "null", `"N/A"`, `"n/a"`:
		*t = TriNA
	default:
		return fmt.Errorf("invalid tri-state value: %s", data)
	}
	return nil
}

// InsightFlags holds the qualitative conversation insights for one deal.
type InsightFlags struct {
	PricingConcern   TriState `json:"pricingConcern"`
	NoDecisionMaker  TriState `json:"noDecisionMaker"`
	CompetitorInPlay TriState `json:"competitorInPlay"`
}

// NoInsightData is the default flag set when the upstream has not
// evaluated a deal.
func NoInsightData() InsightFlags {
	return InsightFlags{PricingConcern: TriNA, NoDecisionMaker: TriNA, CompetitorInPlay: TriNA}
}

// ActivityCount is a non-negative activity tally that may be absent. Known
// is false when the upstream reported "N/A" for the deal; an unknown count
// must never render as zero.
type ActivityCount struct {
	Count int
	Known bool
}

// MarshalJSON encodes a known count as a JSON number and an unknown count
// as the "N/A" sentinel.
func (a ActivityCount) MarshalJSON() ([]byte, error) {
	if !a.Known {
		return []byte(`"N/A"`), nil
	}
	return json.Marshal(a.Count)
}

// UnmarshalJSON accepts a JSON number, the "N/A" sentinel, or null.
func (a *ActivityCount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch string(data) {
	case "null", `"N/A"`, `"n/a"`:
		*a = ActivityCount{}
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid activity count: %s", data)
	}
	if n < 0 {
		return fmt.Errorf("negative activity count: %d", n)
	}
	*a = ActivityCount{Count: n, Known: true}
	return nil
}

// SignalTally buckets conversation signal strength for one deal.
type SignalTally struct {
	StrongPositive int `json:"strongPositive"`
	Positive       int `json:"positive"`
	Negative       int `json:"negative"`
}

// Total returns the combined signal count across buckets.
func (s SignalTally) Total() int {
	return s.StrongPositive + s.Positive + s.Negative
}

// The three derived maps, each keyed by deal name.
type (
	InsightMap  map[string]InsightFlags
	ActivityMap map[string]ActivityCount
	SignalMap   map[string]SignalTally
)
