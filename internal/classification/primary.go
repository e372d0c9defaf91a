// Package classification labels voters from their partisan primary history.
package classification

import (
	"strings"

	"github.com/Veraticus/redistrict-impact/internal/model"
)

// ParsePartyCode maps a primary ballot code to the party drawn.
// RE and DE are the state codes; anything else is treated as no partisan vote.
func ParsePartyCode(code string) model.PrimaryVote {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "RE", "R", "REP":
		return model.RepublicanPrimary
	case "DE", "D", "DEM":
		return model.DemocratPrimary
	default:
		return model.NoPrimaryVote
	}
}

// CountPrimaryVotes tallies Republican and Democratic primary ballots.
func CountPrimaryVotes(v *model.Voter) (rep, dem int) {
	for _, p := range v.Primaries {
		switch p {
		case model.RepublicanPrimary:
			rep++
		case model.DemocratPrimary:
			dem++
		}
	}
	return rep, dem
}

// ClassifyPrimary labels a vote tally: one party only wins that party,
// both parties is Swing, neither is Unknown.
func ClassifyPrimary(rep, dem int) model.Party {
	switch {
	case rep > 0 && dem == 0:
		return model.Republican
	case dem > 0 && rep == 0:
		return model.Democrat
	case rep > 0 && dem > 0:
		return model.Swing
	default:
		return model.Unknown
	}
}

// Classify labels a voter from its primary history.
func Classify(v *model.Voter) model.Party {
	return ClassifyPrimary(CountPrimaryVotes(v))
}

// Summary counts voters per primary classification.
type Summary struct {
	Republican int
	Democrat   int
	Swing      int
	Unknown    int
}

// Labeled returns the number of voters with any partisan primary history.
func (s Summary) Labeled() int {
	return s.Republican + s.Democrat + s.Swing
}

// Add counts one classification.
func (s *Summary) Add(p model.Party) {
	switch p {
	case model.Republican:
		s.Republican++
	case model.Democrat:
		s.Democrat++
	case model.Swing:
		s.Swing++
	default:
		s.Unknown++
	}
}

// Merge adds other into s.
func (s *Summary) Merge(other Summary) {
	s.Republican += other.Republican
	s.Democrat += other.Democrat
	s.Swing += other.Swing
	s.Unknown += other.Unknown
}

// Counts returns the summary keyed for stage metadata.
func (s Summary) Counts() map[string]int {
	return map[string]int{
		"republican": s.Republican,
		"democrat":   s.Democrat,
		"swing":      s.Swing,
		"unknown":    s.Unknown,
	}
}

// ClassifyAll sets Primary on every voter and tallies the outcome.
// Known labels also become the voter's final label.
func ClassifyAll(voters []model.Voter) Summary {
	var s Summary
	for i := range voters {
		v := &voters[i]
		v.Primary = Classify(v)
		s.Add(v.Primary)

		if v.Primary != model.Unknown {
			v.Final = model.FinalLabel{Party: v.Primary, Source: model.SourceKnown}
		} else if v.Final.Source == model.SourceKnown || v.Final.Source == "" {
			v.Final = model.FinalLabel{Party: model.Unknown, Source: model.SourceUnmodeled}
		}
	}
	return s
}
