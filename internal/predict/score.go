// Package predict trains and applies the party affiliation model for voters
// without partisan primary history.
package predict

import (
	"github.com/Veraticus/redistrict-impact/internal/classification"
	"github.com/Veraticus/redistrict-impact/internal/model"
)

// Score bucket thresholds on the probability of the leading party.
const (
	LikelyThreshold = 0.65
	LeanThreshold   = 0.55
)

// Score buckets a Republican probability. The Democratic probability is its
// complement.
func Score(repProb float64) model.PartyScore {
	demProb := 1 - repProb
	switch {
	case repProb >= LikelyThreshold:
		return model.LikelyRepublican
	case repProb >= LeanThreshold:
		return model.LeanRepublican
	case demProb >= LikelyThreshold:
		return model.LikelyDemocrat
	case demProb >= LeanThreshold:
		return model.LeanDemocrat
	default:
		return model.SwingScore
	}
}

// Eligible reports whether v should be modeled: it voted in a general
// election and never drew a partisan primary ballot.
func Eligible(v *model.Voter) bool {
	if v.GeneralVotes <= 0 {
		return false
	}
	rep, dem := classification.CountPrimaryVotes(v)
	return rep+dem == 0
}

func prediction(repProb float64, method model.PredictionMethod) model.PartyPrediction {
	if repProb < 0 {
		repProb = 0
	}
	if repProb > 1 {
		repProb = 1
	}
	return model.PartyPrediction{
		RepProb: repProb,
		DemProb: 1 - repProb,
		Score:   Score(repProb),
		Method:  method,
	}
}
