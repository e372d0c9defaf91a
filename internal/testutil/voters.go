package testutil

import (
	"fmt"
	"time"

	"github.com/Veraticus/redistrict-impact/internal/model"
)

// VoterBuilder creates synthetic voters already assigned to congressional
// districts. Upper and lower chamber districts are always 1 on both maps.
type VoterBuilder struct {
	county   string
	precinct string
	voters   []model.Voter
	next     int
}

// NewVoterBuilder starts an empty builder placing voters in TRAVIS precinct 101.
func NewVoterBuilder() *VoterBuilder {
	return &VoterBuilder{county: "TRAVIS", precinct: "101", next: 1}
}

// InPrecinct places subsequently added voters in precinct.
func (b *VoterBuilder) InPrecinct(county, precinct string) *VoterBuilder {
	b.county = county
	b.precinct = precinct
	return b
}

// WithKnown adds n voters who drew party's primary ballot, moving from old
// congressional district oldCD to newCD.
func (b *VoterBuilder) WithKnown(party model.Party, n, oldCD, newCD int) *VoterBuilder {
	for i := 0; i < n; i++ {
		v := b.voter(oldCD, newCD)
		switch party {
		case model.Republican:
			v.Primaries[0] = model.RepublicanPrimary
		case model.Democrat:
			v.Primaries[0] = model.DemocratPrimary
		case model.Swing:
			v.Primaries[0] = model.RepublicanPrimary
			v.Primaries[1] = model.DemocratPrimary
		}
		v.Primary = party
		v.Final = model.FinalLabel{Party: party, Source: model.SourceKnown}
		b.voters = append(b.voters, v)
	}
	return b
}

var scoreProbability = map[model.PartyScore]float64{
	model.LikelyRepublican: 0.8,
	model.LeanRepublican:   0.6,
	model.SwingScore:       0.5,
	model.LeanDemocrat:     0.4,
	model.LikelyDemocrat:   0.2,
}

// WithModeled adds n general election voters whose final label was predicted.
func (b *VoterBuilder) WithModeled(score model.PartyScore, n, oldCD, newCD int) *VoterBuilder {
	for i := 0; i < n; i++ {
		v := b.voter(oldCD, newCD)
		v.Primary = model.Unknown
		rep := scoreProbability[score]
		v.Prediction = &model.PartyPrediction{RepProb: rep, DemProb: 1 - rep, Score: score, Method: model.MethodGeographic}
		v.Final = model.FinalLabel{Party: score.Party(), Source: model.SourceModeled}
		b.voters = append(b.voters, v)
	}
	return b
}

// WithUnlabeled adds n general election voters with no primary history.
func (b *VoterBuilder) WithUnlabeled(n, oldCD, newCD int) *VoterBuilder {
	for i := 0; i < n; i++ {
		v := b.voter(oldCD, newCD)
		v.Primary = model.Unknown
		v.Final = model.FinalLabel{Party: model.Unknown, Source: model.SourceUnmodeled}
		b.voters = append(b.voters, v)
	}
	return b
}

// Build returns the voters added so far.
func (b *VoterBuilder) Build() []model.Voter {
	out := make([]model.Voter, len(b.voters))
	copy(out, b.voters)
	return out
}

func (b *VoterBuilder) voter(oldCD, newCD int) model.Voter {
	v := model.Voter{
		ID:           fmt.Sprintf("V%06d", b.next),
		DOB:          time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC),
		County:       b.county,
		City:         "AUSTIN",
		Zip:          "78701",
		Precinct:     b.precinct,
		GeneralVotes: 1,
	}
	b.next++
	v.Age = model.AgeOn(v.DOB, model.DefaultAgeReference)
	v.AgeBracket = model.BracketFor(v.Age)

	ids := map[model.DistrictType][2]int{
		model.Congressional: {oldCD, newCD},
		model.UpperChamber:  {1, 1},
		model.LowerChamber:  {1, 1},
	}
	for t, pair := range ids {
		old := model.DistrictKey{Type: t, Map: model.OldMap}
		v.SetRecordDistrict(old, pair[0])
		v.SetAssignment(old, model.Assignment{ID: pair[0], Source: model.SourceRecord})
		v.SetAssignment(model.DistrictKey{Type: t, Map: model.NewMap}, model.Assignment{ID: pair[1], Source: model.SourcePrecinct})
	}
	return v
}
