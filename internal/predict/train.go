package predict

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/Veraticus/redistrict-impact/internal/features"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ErrInsufficientTrainingData means too few labeled voters to fit a model.
// Callers fall back to the geographic heuristic.
var ErrInsufficientTrainingData = errors.New("insufficient labeled voters to train party model")

// Class labels used by the trainer.
const (
	ClassDemocrat   = 0
	ClassRepublican = 1
)

// TrainerOptions configures model fitting.
type TrainerOptions struct {
	SampleCap    int
	TestFraction float64
	Seed         uint64
	Epochs       int
	LearningRate float64
	L2           float64
	// MinPerClass is the smallest number of labeled voters per party
	// required to fit. Below it training is refused.
	MinPerClass int
	// MinAccuracy flags the model as degraded when hold-out accuracy is lower.
	MinAccuracy float64
}

// DefaultTrainerOptions returns sensible defaults.
func DefaultTrainerOptions() TrainerOptions {
	return TrainerOptions{
		SampleCap:    1_000_000,
		TestFraction: 0.2,
		Seed:         42,
		Epochs:       300,
		LearningRate: 0.5,
		L2:           1e-4,
		MinPerClass:  1_000,
		MinAccuracy:  0.6,
	}
}

// Sample is one labeled feature row.
type Sample struct {
	Row   []float64
	Label int
}

// FeatureWeight is a standardized coefficient, used to report which columns
// drive the model.
type FeatureWeight struct {
	Column string  `json:"column"`
	Weight float64 `json:"weight"`
}

// Metrics describes a fitted model.
type Metrics struct {
	ClassWeights  map[string]float64 `json:"class_weights"`
	Importance    []FeatureWeight    `json:"importance"`
	TrainSize     int                `json:"train_size"`
	TestSize      int                `json:"test_size"`
	Republican    int                `json:"republican"`
	Democrat      int                `json:"democrat"`
	TrainAccuracy float64            `json:"train_accuracy"`
	TestAccuracy  float64            `json:"test_accuracy"`
	Duration      time.Duration      `json:"duration"`
	Degraded      bool               `json:"degraded"`
}

// Trainer fits a class-balanced logistic regression.
type Trainer struct {
	opts TrainerOptions
}

// NewTrainer creates a trainer, filling unset options with defaults.
func NewTrainer(opts TrainerOptions) *Trainer {
	def := DefaultTrainerOptions()
	if opts.SampleCap <= 0 {
		opts.SampleCap = def.SampleCap
	}
	if opts.TestFraction <= 0 || opts.TestFraction >= 1 {
		opts.TestFraction = def.TestFraction
	}
	if opts.Epochs <= 0 {
		opts.Epochs = def.Epochs
	}
	if opts.LearningRate <= 0 {
		opts.LearningRate = def.LearningRate
	}
	if opts.MinPerClass <= 0 {
		opts.MinPerClass = 1
	}
	return &Trainer{opts: opts}
}

// Options returns the effective options.
func (t *Trainer) Options() TrainerOptions {
	return t.opts
}

// Train fits a model on samples. Samples are stratified down to the cap and
// split into train and hold-out sets with a seeded generator, so identical
// input yields an identical model.
func (t *Trainer) Train(ctx context.Context, samples []Sample) (*LogisticModel, *Metrics, error) {
	start := time.Now()
	rng := rand.New(rand.NewPCG(t.opts.Seed, t.opts.Seed))

	byClass := [2][]int{}
	for i, s := range samples {
		if s.Label == ClassDemocrat || s.Label == ClassRepublican {
			byClass[s.Label] = append(byClass[s.Label], i)
		}
	}
	if len(byClass[ClassRepublican]) < t.opts.MinPerClass || len(byClass[ClassDemocrat]) < t.opts.MinPerClass {
		return nil, nil, fmt.Errorf("%w: %d republican, %d democrat, need %d of each",
			ErrInsufficientTrainingData, len(byClass[ClassRepublican]), len(byClass[ClassDemocrat]), t.opts.MinPerClass)
	}

	byClass = stratify(byClass, t.opts.SampleCap, rng)

	var trainIdx, testIdx []int
	for c := range byClass {
		idx := byClass[c]
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		nTest := int(math.Round(float64(len(idx)) * t.opts.TestFraction))
		testIdx = append(testIdx, idx[:nTest]...)
		trainIdx = append(trainIdx, idx[nTest:]...)
	}
	sort.Ints(trainIdx)
	sort.Ints(testIdx)

	width := len(samples[trainIdx[0]].Row)
	m := fitStandardizer(samples, trainIdx, width)

	n := float64(len(trainIdx))
	var counts [2]float64
	for _, i := range trainIdx {
		counts[samples[i].Label]++
	}
	if counts[0] == 0 || counts[1] == 0 {
		return nil, nil, fmt.Errorf("%w: hold-out split left a class without training rows", ErrInsufficientTrainingData)
	}
	// Balanced weights: n / (classes * n_c)
	classWeight := [2]float64{n / (2 * counts[0]), n / (2 * counts[1])}

	x := make([]float64, len(trainIdx)*width)
	y := make([]float64, len(trainIdx))
	w := make([]float64, len(trainIdx))
	for r, i := range trainIdx {
		m.standardize(samples[i].Row, x[r*width:(r+1)*width])
		y[r] = float64(samples[i].Label)
		w[r] = classWeight[samples[i].Label]
	}
	wSum := floats.Sum(w)

	grad := make([]float64, width)
	for epoch := 0; epoch < t.opts.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		for j := range grad {
			grad[j] = 0
		}
		var gradBias float64
		for r := range y {
			row := x[r*width : (r+1)*width]
			p := sigmoid(floats.Dot(m.Weights, row) + m.Bias)
			e := w[r] * (p - y[r])
			floats.AddScaled(grad, e, row)
			gradBias += e
		}

		floats.Scale(1/wSum, grad)
		floats.AddScaled(grad, t.opts.L2, m.Weights)
		floats.AddScaled(m.Weights, -t.opts.LearningRate, grad)
		m.Bias -= t.opts.LearningRate * gradBias / wSum
	}

	metrics := &Metrics{
		TrainSize:     len(trainIdx),
		TestSize:      len(testIdx),
		Republican:    len(byClass[ClassRepublican]),
		Democrat:      len(byClass[ClassDemocrat]),
		TrainAccuracy: accuracy(m, samples, trainIdx),
		TestAccuracy:  accuracy(m, samples, testIdx),
		ClassWeights: map[string]float64{
			"democrat":   classWeight[ClassDemocrat],
			"republican": classWeight[ClassRepublican],
		},
		Importance: importance(m.Weights),
		Duration:   time.Since(start),
	}
	metrics.Degraded = metrics.TestAccuracy < t.opts.MinAccuracy

	slog.Info("Trained party model",
		"train_size", metrics.TrainSize,
		"test_size", metrics.TestSize,
		"train_accuracy", metrics.TrainAccuracy,
		"test_accuracy", metrics.TestAccuracy,
		"degraded", metrics.Degraded)

	return m, metrics, nil
}

// stratify down-samples each class so the total fits the cap while keeping
// class proportions.
func stratify(byClass [2][]int, limit int, rng *rand.Rand) [2][]int {
	total := len(byClass[0]) + len(byClass[1])
	if total <= limit {
		return byClass
	}
	var out [2][]int
	for c, idx := range byClass {
		keep := int(math.Round(float64(limit) * float64(len(idx)) / float64(total)))
		perm := rng.Perm(len(idx))[:keep]
		sort.Ints(perm)
		out[c] = make([]int, keep)
		for k, p := range perm {
			out[c][k] = idx[p]
		}
	}
	return out
}

// fitStandardizer computes imputation medians, means and scales on training rows.
func fitStandardizer(samples []Sample, idx []int, width int) *LogisticModel {
	m := &LogisticModel{
		Weights: make([]float64, width),
		Means:   make([]float64, width),
		Scales:  make([]float64, width),
		Medians: make([]float64, width),
	}

	col := make([]float64, 0, len(idx))
	for j := 0; j < width; j++ {
		col = col[:0]
		for _, i := range idx {
			v := samples[i].Row[j]
			if !math.IsNaN(v) && !math.IsInf(v, 0) {
				col = append(col, v)
			}
		}
		if len(col) > 0 {
			sort.Float64s(col)
			m.Medians[j] = stat.Quantile(0.5, stat.Empirical, col, nil)
		}

		// Moments are taken after imputation, matching what standardize sees
		missing := len(idx) - len(col)
		for k := 0; k < missing; k++ {
			col = append(col, m.Medians[j])
		}
		mean, std := 0.0, 0.0
		if len(col) > 0 {
			mean, std = stat.MeanStdDev(col, nil)
		}
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		m.Means[j] = mean
		m.Scales[j] = std
	}
	return m
}

func accuracy(m *LogisticModel, samples []Sample, idx []int) float64 {
	if len(idx) == 0 {
		return 0
	}
	correct := 0
	for _, i := range idx {
		p := m.Probability(samples[i].Row)
		predicted := ClassDemocrat
		if p >= 0.5 {
			predicted = ClassRepublican
		}
		if predicted == samples[i].Label {
			correct++
		}
	}
	return float64(correct) / float64(len(idx))
}

func importance(weights []float64) []FeatureWeight {
	out := make([]FeatureWeight, 0, len(weights))
	for j, w := range weights {
		name := fmt.Sprintf("col_%d", j)
		if j < len(features.Columns) {
			name = features.Columns[j]
		}
		out = append(out, FeatureWeight{Column: name, Weight: w})
	}
	sort.SliceStable(out, func(a, b int) bool {
		return math.Abs(out[a].Weight) > math.Abs(out[b].Weight)
	})
	return out
}
