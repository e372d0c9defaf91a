package model

// Party is a partisan label.
type Party string

// Party labels. Swing marks voters with mixed primary history or a modeled
// probability near even; Unknown marks voters with nothing to go on.
const (
	Republican Party = "Republican"
	Democrat   Party = "Democrat"
	Swing      Party = "Swing"
	Unknown    Party = "Unknown"
)

// PrimaryVote is the party a voter drew in one primary election.
type PrimaryVote int

// Primary ballot parties.
const (
	NoPrimaryVote PrimaryVote = iota
	RepublicanPrimary
	DemocratPrimary
)

// PrimaryElections names the primary columns in the order they are stored on a Voter.
var PrimaryElections = []string{"PRI24", "PRI22", "PRI20", "PRI18"}

// PartyScore is the categorical bucket for a modeled probability.
type PartyScore string

// Score buckets, ordered from most Republican to most Democratic.
const (
	LikelyRepublican PartyScore = "Likely Republican"
	LeanRepublican   PartyScore = "Lean Republican"
	SwingScore       PartyScore = "Swing"
	LeanDemocrat     PartyScore = "Lean Democrat"
	LikelyDemocrat   PartyScore = "Likely Democrat"
)

// Party collapses a score to the label used in composition counts.
func (s PartyScore) Party() Party {
	switch s {
	case LikelyRepublican, LeanRepublican:
		return Republican
	case LikelyDemocrat, LeanDemocrat:
		return Democrat
	case SwingScore:
		return Swing
	default:
		return Unknown
	}
}

// PredictionMethod names what produced a prediction.
type PredictionMethod string

const (
	// MethodModel is the trained classifier.
	MethodModel PredictionMethod = "model"
	// MethodGeographic is the neighborhood composition heuristic.
	MethodGeographic PredictionMethod = "geographic"
)

// PartyPrediction is the modeled leaning of a voter without primary history.
type PartyPrediction struct {
	Score   PartyScore
	Method  PredictionMethod
	RepProb float64
	DemProb float64
}

// LabelSource records where a final label came from.
type LabelSource string

// Label sources.
const (
	SourceKnown     LabelSource = "known"
	SourceModeled   LabelSource = "modeled"
	SourceUnmodeled LabelSource = "unmodeled"
)

// FinalLabel is the label used for aggregation.
type FinalLabel struct {
	Party  Party
	Source LabelSource
}

// Known reports whether the label came from primary history.
func (l FinalLabel) Known() bool {
	return l.Source == SourceKnown
}

// Modeled reports whether the label came from a prediction.
func (l FinalLabel) Modeled() bool {
	return l.Source == SourceModeled
}
