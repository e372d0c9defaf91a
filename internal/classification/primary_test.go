package classification

import (
	"testing"

	"github.com/Veraticus/redistrict-impact/internal/model"
	"github.com/stretchr/testify/assert"
)

func voterWith(votes ...model.PrimaryVote) model.Voter {
	var v model.Voter
	copy(v.Primaries[:], votes)
	return v
}

func TestClassifyPrimary(t *testing.T) {
	tests := []struct {
		name     string
		want     model.Party
		rep, dem int
	}{
		{name: "republican only", rep: 2, want: model.Republican},
		{name: "democrat only", dem: 1, want: model.Democrat},
		{name: "both parties", rep: 1, dem: 3, want: model.Swing},
		{name: "no primaries", want: model.Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyPrimary(tt.rep, tt.dem))
		})
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	v := voterWith(model.RepublicanPrimary, model.NoPrimaryVote, model.DemocratPrimary)
	first := Classify(&v)
	for range 10 {
		assert.Equal(t, first, Classify(&v))
	}
	assert.Equal(t, model.Swing, first)
}

func TestParsePartyCode(t *testing.T) {
	assert.Equal(t, model.RepublicanPrimary, ParsePartyCode("RE"))
	assert.Equal(t, model.RepublicanPrimary, ParsePartyCode(" re "))
	assert.Equal(t, model.DemocratPrimary, ParsePartyCode("DE"))
	assert.Equal(t, model.NoPrimaryVote, ParsePartyCode("LI"))
	assert.Equal(t, model.NoPrimaryVote, ParsePartyCode(""))
}

func TestClassifyAllSetsFinalLabels(t *testing.T) {
	voters := []model.Voter{
		voterWith(model.RepublicanPrimary),
		voterWith(model.DemocratPrimary, model.DemocratPrimary),
		voterWith(model.RepublicanPrimary, model.DemocratPrimary),
		voterWith(),
	}

	summary := ClassifyAll(voters)

	assert.Equal(t, Summary{Republican: 1, Democrat: 1, Swing: 1, Unknown: 1}, summary)
	assert.Equal(t, 3, summary.Labeled())

	assert.Equal(t, model.FinalLabel{Party: model.Republican, Source: model.SourceKnown}, voters[0].Final)
	assert.Equal(t, model.FinalLabel{Party: model.Swing, Source: model.SourceKnown}, voters[2].Final)
	assert.Equal(t, model.FinalLabel{Party: model.Unknown, Source: model.SourceUnmodeled}, voters[3].Final)
}

func TestClassifyAllKeepsExistingPredictions(t *testing.T) {
	v := voterWith()
	v.Final = model.FinalLabel{Party: model.Democrat, Source: model.SourceModeled}
	voters := []model.Voter{v}

	ClassifyAll(voters)

	assert.Equal(t, model.SourceModeled, voters[0].Final.Source)
}
