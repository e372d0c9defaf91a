package predict

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"path/filepath"
	"testing"

	"github.com/Veraticus/redistrict-impact/internal/features"
	"github.com/Veraticus/redistrict-impact/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestScoreBuckets(t *testing.T) {
	tests := []struct {
		want model.PartyScore
		rep  float64
	}{
		{rep: 0.90, want: model.LikelyRepublican},
		{rep: 0.65, want: model.LikelyRepublican},
		{rep: 0.64, want: model.LeanRepublican},
		{rep: 0.55, want: model.LeanRepublican},
		{rep: 0.54, want: model.SwingScore},
		{rep: 0.50, want: model.SwingScore},
		{rep: 0.44, want: model.LeanDemocrat},
		{rep: 0.35, want: model.LikelyDemocrat},
		{rep: 0.01, want: model.LikelyDemocrat},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Score(tt.rep), "rep=%v", tt.rep)
	}
}

func TestEligible(t *testing.T) {
	general := model.Voter{GeneralVotes: 1}
	assert.True(t, Eligible(&general))

	primary := model.Voter{GeneralVotes: 3, Primaries: [4]model.PrimaryVote{model.DemocratPrimary}}
	assert.False(t, Eligible(&primary))

	never := model.Voter{}
	assert.False(t, Eligible(&never))
}

// syntheticSamples separates the classes on precinct_rep_pct with noise.
func syntheticSamples(nRep, nDem int, seed uint64) []Sample {
	rng := rand.New(rand.NewPCG(seed, seed))
	out := make([]Sample, 0, nRep+nDem)
	add := func(label int, center float64) {
		row := make([]float64, len(features.Columns))
		for j := range row {
			row[j] = rng.Float64()
		}
		row[4] = center + (rng.Float64()-0.5)*0.3
		row[5] = 1 - row[4]
		row[16] = math.NaN()
		out = append(out, Sample{Row: row, Label: label})
	}
	for i := 0; i < nRep; i++ {
		add(ClassRepublican, 0.75)
	}
	for i := 0; i < nDem; i++ {
		add(ClassDemocrat, 0.25)
	}
	return out
}

func smallTrainer() *Trainer {
	opts := DefaultTrainerOptions()
	opts.MinPerClass = 50
	opts.Epochs = 200
	return NewTrainer(opts)
}

func TestTrainSeparatesClasses(t *testing.T) {
	samples := syntheticSamples(600, 400, 1)

	m, metrics, err := smallTrainer().Train(context.Background(), samples)
	require.NoError(t, err)

	assert.Equal(t, 800, metrics.TrainSize)
	assert.Equal(t, 200, metrics.TestSize)
	assert.Greater(t, metrics.TestAccuracy, 0.9)
	assert.False(t, metrics.Degraded)
	assert.Contains(t, []string{"precinct_rep_pct", "precinct_dem_pct"}, metrics.Importance[0].Column)

	assert.InDelta(t, 1000.0/(2*600), metrics.ClassWeights["republican"], 0.01)
	assert.InDelta(t, 1000.0/(2*400), metrics.ClassWeights["democrat"], 0.01)

	rep := make([]float64, len(features.Columns))
	rep[4], rep[5] = 0.9, 0.1
	assert.Greater(t, m.Probability(rep), 0.5)

	dem := make([]float64, len(features.Columns))
	dem[4], dem[5] = 0.1, 0.9
	assert.Less(t, m.Probability(dem), 0.5)
}

func TestTrainIsDeterministic(t *testing.T) {
	samples := syntheticSamples(300, 300, 7)

	a, _, err := smallTrainer().Train(context.Background(), samples)
	require.NoError(t, err)
	b, _, err := smallTrainer().Train(context.Background(), samples)
	require.NoError(t, err)

	assert.Equal(t, a.Weights, b.Weights)
	assert.Equal(t, a.Bias, b.Bias)
}

func TestTrainCapsSamplesStratified(t *testing.T) {
	opts := DefaultTrainerOptions()
	opts.MinPerClass = 10
	opts.SampleCap = 100
	opts.Epochs = 5

	_, metrics, err := NewTrainer(opts).Train(context.Background(), syntheticSamples(700, 300, 3))
	require.NoError(t, err)

	assert.Equal(t, 70, metrics.Republican)
	assert.Equal(t, 30, metrics.Democrat)
	assert.Equal(t, 100, metrics.TrainSize+metrics.TestSize)
}

func TestTrainRefusesInsufficientData(t *testing.T) {
	_, _, err := smallTrainer().Train(context.Background(), syntheticSamples(500, 10, 1))
	assert.ErrorIs(t, err, ErrInsufficientTrainingData)
}

func TestTrainHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := smallTrainer().Train(ctx, syntheticSamples(100, 100, 1))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSampleCollectorKeepsClassMix(t *testing.T) {
	builder := features.NewBuilder(nil, nil)
	c := NewSampleCollector(builder, 100, 42)

	for i := 0; i < 700; i++ {
		c.Add(&model.Voter{Primary: model.Republican})
	}
	for i := 0; i < 300; i++ {
		c.Add(&model.Voter{Primary: model.Democrat})
	}
	c.Add(&model.Voter{Primary: model.Swing})

	rep, dem := c.Seen()
	assert.Equal(t, 700, rep)
	assert.Equal(t, 300, dem)

	samples := c.Samples()
	var counts [2]int
	for _, s := range samples {
		counts[s.Label]++
	}
	assert.Equal(t, 70, counts[ClassRepublican])
	assert.Equal(t, 30, counts[ClassDemocrat])
}

func neighborhood() *features.Aggregates {
	var voters []model.Voter
	add := func(n int, party model.Party, pct, zip string) {
		for i := 0; i < n; i++ {
			voters = append(voters, model.Voter{
				County:     "TRAVIS",
				Precinct:   pct,
				Zip:        zip,
				Age:        50,
				AgeBracket: model.Bracket45to54,
				Primary:    party,
			})
		}
	}
	add(8, model.Republican, "101", "78701")
	add(2, model.Democrat, "101", "78701")
	add(1, model.Republican, "102", "78702")
	add(3, model.Democrat, "102", "78702")
	add(2, model.Swing, "102", "78702")
	return features.BuildAggregates(voters)
}

func TestGeographicFallbackOrder(t *testing.T) {
	g := NewGeographicFallback(neighborhood())

	inPrecinct := model.Voter{County: "TRAVIS", Precinct: "101", GeneralVotes: 1}
	p := g.Predict(&inPrecinct)
	assert.InDelta(t, 0.8, p.RepProb, 1e-12)
	assert.Equal(t, model.LikelyRepublican, p.Score)
	assert.Equal(t, model.MethodGeographic, p.Method)

	// Swing voters dilute both shares but not the normalized ratio
	swingy := model.Voter{County: "TRAVIS", Precinct: "102", GeneralVotes: 1}
	assert.InDelta(t, 0.25, g.Predict(&swingy).RepProb, 1e-12)

	byZip := model.Voter{County: "HARRIS", Precinct: "9", Zip: "78702", GeneralVotes: 1}
	assert.InDelta(t, 0.25, g.Predict(&byZip).RepProb, 1e-12)

	byCounty := model.Voter{County: "TRAVIS", Precinct: "999", GeneralVotes: 1}
	assert.InDelta(t, 9.0/14.0, g.Predict(&byCounty).RepProb, 1e-12)

	nothing := model.Voter{County: "HARRIS", Precinct: "9", AgeBracket: model.BracketUnknown, GeneralVotes: 1}
	got := g.Predict(&nothing)
	assert.Equal(t, 0.5, got.RepProb)
	assert.Equal(t, model.SwingScore, got.Score)
}

func predictionVoters() []model.Voter {
	var voters []model.Voter
	for i := 0; i < 53; i++ {
		v := model.Voter{County: "TRAVIS", Precinct: "101", GeneralVotes: 1}
		switch i % 3 {
		case 1:
			v.Precinct = "102"
		case 2:
			v.GeneralVotes = 0
			v.Final = model.FinalLabel{Party: model.Unknown, Source: model.SourceUnmodeled}
		}
		if i%10 == 0 {
			v.Primaries[0] = model.RepublicanPrimary
			v.Primary = model.Republican
			v.Final = model.FinalLabel{Party: model.Republican, Source: model.SourceKnown}
		}
		voters = append(voters, v)
	}
	return voters
}

func TestRunIsBatchIndependent(t *testing.T) {
	g := NewGeographicFallback(neighborhood())

	one := predictionVoters()
	_, err := Run(context.Background(), one, g, RunOptions{BatchSize: 1, Workers: 4})
	require.NoError(t, err)

	all := predictionVoters()
	summary, err := Run(context.Background(), all, g, RunOptions{BatchSize: 1000, Workers: 1})
	require.NoError(t, err)

	require.Equal(t, len(one), len(all))
	for i := range one {
		assert.Equal(t, one[i].Final, all[i].Final, "voter %d", i)
		if one[i].Prediction == nil {
			assert.Nil(t, all[i].Prediction)
			continue
		}
		require.NotNil(t, all[i].Prediction)
		assert.Equal(t, *one[i].Prediction, *all[i].Prediction)
	}

	assert.Equal(t, 53, summary.Voters)
	total := 0
	for _, n := range summary.ByScore {
		total += n
	}
	assert.Equal(t, summary.Eligible, total)
}

func TestRunOnlyModelsEligibleVoters(t *testing.T) {
	voters := predictionVoters()
	_, err := Run(context.Background(), voters, NewGeographicFallback(neighborhood()), DefaultRunOptions())
	require.NoError(t, err)

	for i := range voters {
		v := &voters[i]
		switch {
		case v.Primary == model.Republican:
			assert.Nil(t, v.Prediction)
			assert.Equal(t, model.SourceKnown, v.Final.Source)
		case v.GeneralVotes == 0:
			assert.Nil(t, v.Prediction)
			assert.Equal(t, model.FinalLabel{Party: model.Unknown, Source: model.SourceUnmodeled}, v.Final)
		default:
			require.NotNil(t, v.Prediction)
			assert.Equal(t, model.SourceModeled, v.Final.Source)
			assert.Equal(t, v.Prediction.Score.Party(), v.Final.Party)
		}
	}
}

func TestRunReportsProgressAndCancellation(t *testing.T) {
	var calls []int
	_, err := Run(context.Background(), predictionVoters(), NewGeographicFallback(nil), RunOptions{
		BatchSize: 10,
		Workers:   2,
		Progress: func(done, _ int) {
			calls = append(calls, done)
		},
	})
	require.NoError(t, err)
	require.Len(t, calls, 6)
	assert.Equal(t, 53, calls[len(calls)-1])

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Run(ctx, predictionVoters(), NewGeographicFallback(nil), DefaultRunOptions())
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestArtifactRoundTripAndPredict(t *testing.T) {
	samples := syntheticSamples(300, 300, 11)
	m, metrics, err := smallTrainer().Train(context.Background(), samples)
	require.NoError(t, err)

	agg := neighborhood()
	enc := &features.Encoders{County: features.NewVocabulary(map[string]struct{}{"TRAVIS": {}})}
	artifact := NewArtifact("run-1", m, metrics, features.NewBuilder(agg, enc), enc)

	path := filepath.Join(t.TempDir(), "models", "party.json")
	require.NoError(t, artifact.Save(path))

	loaded, err := LoadArtifact(path)
	require.NoError(t, err)
	assert.Equal(t, "run-1", loaded.ID)
	assert.Equal(t, features.Columns, loaded.Columns)

	p := NewModelPredictor(loaded)
	v := model.Voter{County: "TRAVIS", Precinct: "101", GeneralVotes: 1}
	got := p.Predict(&v)
	assert.Equal(t, model.MethodModel, got.Method)
	assert.InDelta(t, 1.0, got.RepProb+got.DemProb, 1e-12)
	assert.Equal(t, NewModelPredictor(artifact).Predict(&v), got)
}

func TestArtifactRejectsManifestMismatch(t *testing.T) {
	bad := &Artifact{Columns: []string{"age"}, Model: &LogisticModel{Weights: []float64{1}}}
	data, err := bad.Marshal()
	require.NoError(t, err)

	_, err = UnmarshalArtifact(data)
	assert.ErrorIs(t, err, ErrManifestMismatch)
}
