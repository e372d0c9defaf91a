package predict

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// LogisticModel is a standardized logistic regression over the feature
// manifest. It predicts the probability of a Republican label.
type LogisticModel struct {
	Weights []float64 `json:"weights"`
	Means   []float64 `json:"means"`
	Scales  []float64 `json:"scales"`
	Medians []float64 `json:"medians"`
	Bias    float64   `json:"bias"`
}

// Probability returns P(Republican) for a raw feature row.
func (m *LogisticModel) Probability(row []float64) float64 {
	x := make([]float64, len(m.Weights))
	m.standardize(row, x)
	return sigmoid(floats.Dot(m.Weights, x) + m.Bias)
}

// standardize imputes missing values with the training median and scales
// each column to zero mean and unit variance.
func (m *LogisticModel) standardize(row, dst []float64) {
	for j := range m.Weights {
		v := math.NaN()
		if j < len(row) {
			v = row[j]
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = m.Medians[j]
		}
		dst[j] = (v - m.Means[j]) / m.Scales[j]
	}
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}
