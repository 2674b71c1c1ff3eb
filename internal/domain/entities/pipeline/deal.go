package pipeline

import "time"

// Deal represents a pipeline deal record. The deal name is the join key
// across stages, insights, activity counts and signal maps; the upstream
// API does not expose a stable numeric identifier. Two distinct deals
// sharing a display name cannot be disambiguated client-side, so the
// last-fetched record wins for a given name.
type Deal struct {
	Name              string     `json:"deal_name"`
	Owner             string     `json:"owner"`
	Amount            float64    `json:"amount"`
	ExpectedCloseDate *time.Time `json:"expected_close_date,omitempty"`
	StageName         string     `json:"stage_name"`
	ClosedWon         bool       `json:"closed_won"`
	ClosedLost        bool       `json:"closed_lost"`
}

// DealNames returns the deal names in slice order.
func DealNames(deals []Deal) []string {
	names := make([]string, 0, len(deals))
	for _, d := range deals {
		names = append(names, d.Name)
	}
	return names
}

// FilterByOwner returns the deals belonging to the given owner.
func FilterByOwner(deals []Deal, owner string) []Deal {
	var out []Deal
	for _, d := range deals {
		if d.Owner == owner {
			out = append(out, d)
		}
	}
	return out
}

// OwnerSummary aggregates per-owner performance over a deal set.
type OwnerSummary struct {
	Owner      string  `json:"owner"`
	DealCount  int     `json:"dealCount"`
	TotalValue float64 `json:"totalValue"`
	WonCount   int     `json:"wonCount"`
	LostCount  int     `json:"lostCount"`
	OpenCount  int     `json:"openCount"`
}

// SummarizeByOwner computes per-owner aggregates from a deal set. Owners
// appear in the order of their first deal.
func SummarizeByOwner(deals []Deal) []OwnerSummary {
	index := make(map[string]int)
	var out []OwnerSummary

	for _, d := range deals {
		i, seen := index[d.Owner]
		if !seen {
			i = len(out)
			index[d.Owner] = i
			out = append(out, OwnerSummary{Owner: d.Owner})
		}
		out[i].DealCount++
		out[i].TotalValue += d.Amount
		switch {
		case d.ClosedWon:
			out[i].WonCount++
		case d.ClosedLost:
			out[i].LostCount++
		default:
			out[i].OpenCount++
		}
	}
	return out
}
