package pipeline

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTriStateDistinguishesFalseFromNotEvaluated(t *testing.T) {
	flags := InsightFlags{
		PricingConcern:   TriFalse,
		NoDecisionMaker:  TriNA,
		CompetitorInPlay: TriTrue,
	}

	encoded, err := json.Marshal(flags)
	require.NoError(t, err)
	assert.JSONEq(t, `{"pricingConcern":false,"noDecisionMaker":"N/A","competitorInPlay":true}`, string(encoded))

	var decoded InsightFlags
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	assert.Equal(t, flags, decoded)
	assert.NotEqual(t, decoded.PricingConcern, decoded.NoDecisionMaker, "false and N/A must survive a round trip as distinct values")
}

func TestTriStateUnmarshalAcceptsNullAndSentinel(t *testing.T) {
	var ts TriState

	require.NoError(t, json.Unmarshal([]byte(`null`), &ts))
	assert.Equal(t, TriNA, ts)

	require.NoError(t, json.Unmarshal([]byte(`"n/a"`), &ts))
	assert.Equal(t, TriNA, ts)

	require.NoError(t, json.Unmarshal([]byte(`true`), &ts))
	assert.Equal(t, TriTrue, ts)

	assert.Error(t, json.Unmarshal([]byte(`"yes"`), &ts))
}

func TestActivityCountUnknownNeverRendersAsZero(t *testing.T) {
	unknown := ActivityCount{}
	encoded, err := json.Marshal(unknown)
	require.NoError(t, err)
	assert.Equal(t, `"N/A"`, string(encoded))

	zero := ActivityCount{Count: 0, Known: true}
	encoded, err = json.Marshal(zero)
	require.NoError(t, err)
	assert.Equal(t, `0`, string(encoded))
}

func TestActivityCountUnmarshal(t *testing.T) {
	var ac ActivityCount

	require.NoError(t, json.Unmarshal([]byte(`7`), &ac))
	assert.Equal(t, ActivityCount{Count: 7, Known: true}, ac)

	require.NoError(t, json.Unmarshal([]byte(`"N/A"`), &ac))
	assert.False(t, ac.Known)

	assert.Error(t, json.Unmarshal([]byte(`-3`), &ac), "negative counts are invalid")
	assert.Error(t, json.Unmarshal([]byte(`"many"`), &ac))
}

func TestSortStagesByDisplayOrder(t *testing.T) {
	stages := []Stage{
		{StageName: "Closed Won", DisplayOrder: 5, ClosedWon: true},
		{StageName: "Discovery", DisplayOrder: 1},
		{StageName: "Negotiation", DisplayOrder: 3},
	}

	SortStages(stages)
	assert.Equal(t, []string{"Discovery", "Negotiation", "Closed Won"}, StageNames(stages))
}

func TestSummarizeByOwner(t *testing.T) {
	deals := []Deal{
		{Name: "Acme Expansion", Owner: "dana", Amount: 50000},
		{Name: "Globex Renewal", Owner: "dana", Amount: 20000, ClosedWon: true},
		{Name: "Initech Pilot", Owner: "lee", Amount: 8000, ClosedLost: true},
	}

	summaries := SummarizeByOwner(deals)
	require.Len(t, summaries, 2)

	assert.Equal(t, "dana", summaries[0].Owner)
	assert.Equal(t, 2, summaries[0].DealCount)
	assert.Equal(t, 70000.0, summaries[0].TotalValue)
	assert.Equal(t, 1, summaries[0].WonCount)
	assert.Equal(t, 1, summaries[0].OpenCount)

	assert.Equal(t, "lee", summaries[1].Owner)
	assert.Equal(t, 1, summaries[1].LostCount)
}
