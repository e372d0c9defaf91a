package predict

import (
	"github.com/Veraticus/redistrict-impact/internal/features"
	"github.com/Veraticus/redistrict-impact/internal/model"
)

// Predictor produces a party prediction for one voter. Implementations must
// be safe for concurrent use.
type Predictor interface {
	Predict(v *model.Voter) model.PartyPrediction
	Method() model.PredictionMethod
}

// ModelPredictor applies a trained artifact.
type ModelPredictor struct {
	model   *LogisticModel
	builder *features.Builder
}

// NewModelPredictor creates a predictor from a validated artifact.
func NewModelPredictor(a *Artifact) *ModelPredictor {
	return &ModelPredictor{
		model:   a.Model,
		builder: features.NewBuilder(a.Aggregates, a.Encoders),
	}
}

// Predict scores v with the trained model.
func (p *ModelPredictor) Predict(v *model.Voter) model.PartyPrediction {
	row := p.builder.Vector(v, nil)
	return prediction(p.model.Probability(row), model.MethodModel)
}

// Method identifies the model.
func (p *ModelPredictor) Method() model.PredictionMethod {
	return model.MethodModel
}

// GeographicFallback predicts from the composition of the voter's neighbors:
// precinct, then zip, then county, then age bracket, then even odds.
type GeographicFallback struct {
	agg *features.Aggregates
}

// NewGeographicFallback creates the heuristic predictor.
func NewGeographicFallback(agg *features.Aggregates) *GeographicFallback {
	if agg == nil {
		agg = features.NewAggregates()
	}
	return &GeographicFallback{agg: agg}
}

// Predict normalizes the first available neighbor composition to rep/(rep+dem).
func (g *GeographicFallback) Predict(v *model.Voter) model.PartyPrediction {
	for _, level := range features.FallbackOrder {
		c, ok := g.agg.Lookup(level, v)
		if !ok {
			continue
		}
		rep, dem := c.RepShare(), c.DemShare()
		if rep+dem <= 0 {
			continue
		}
		return prediction(rep/(rep+dem), model.MethodGeographic)
	}
	return prediction(0.5, model.MethodGeographic)
}

// Method identifies the heuristic.
func (g *GeographicFallback) Method() model.PredictionMethod {
	return model.MethodGeographic
}
