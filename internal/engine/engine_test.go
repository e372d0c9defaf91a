package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Veraticus/redistrict-impact/internal/aggregate"
	"github.com/Veraticus/redistrict-impact/internal/common"
	"github.com/Veraticus/redistrict-impact/internal/config"
	"github.com/Veraticus/redistrict-impact/internal/model"
	"github.com/Veraticus/redistrict-impact/internal/predict"
	"github.com/Veraticus/redistrict-impact/internal/storage"
	"github.com/Veraticus/redistrict-impact/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const voterHeader = "VUID,DOB,COUNTY,RCITY,RZIP,PCT,NEWCD,NEWSD,NEWHD,PRI24,PRI22,PRI20,PRI18,GEN24,GEN22,VOTED_EARLY\n"

// precinctMix is how many voters of each primary code live in a precinct.
// An empty code is a general-election voter with no primary history.
type precinctMix struct {
	precinct string
	counts   map[string]int
}

var defaultMix = []precinctMix{
	{precinct: "101", counts: map[string]int{"RE": 12, "DE": 4, "": 4}},
	{precinct: "102", counts: map[string]int{"RE": 3, "DE": 12, "": 5}},
}

func writeVoterFile(t *testing.T, dir string, mix []precinctMix) string {
	t.Helper()
	var b strings.Builder
	b.WriteString(voterHeader)
	id := 1000
	for _, m := range mix {
		for _, code := range []string{"RE", "DE", ""} {
			for i := 0; i < m.counts[code]; i++ {
				id++
				fmt.Fprintf(&b, "%d,19%02d0101,Travis,Austin,78701,%s,10,14,49,%s,,,,Y,,%d\n",
					id, 40+i%50, m.precinct, code, i%2)
			}
		}
	}
	path := filepath.Join(dir, "voters.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0600))
	return path
}

func squareJSON(x0, y0, x1, y1 float64) string {
	return fmt.Sprintf(`{"type":"Polygon","coordinates":[[[%g,%g],[%g,%g],[%g,%g],[%g,%g],[%g,%g]]]}`,
		x0, y0, x1, y0, x1, y1, x0, y1, x0, y0)
}

func writeLayer(t *testing.T, dir, name string, features ...string) string {
	t.Helper()
	path := filepath.Join(dir, name+".geojson")
	body := `{"type":"FeatureCollection","features":[` + strings.Join(features, ",") + `]}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func districtFeature(id int, geometry string) string {
	return fmt.Sprintf(`{"type":"Feature","properties":{"DISTRICT":%d},"geometry":%s}`, id, geometry)
}

// testConfig lays out two side-by-side precincts. The old congressional map
// puts both in district 10; the new map splits them into 37 and 35.
func testConfig(t *testing.T, dir string) *config.Config {
	t.Helper()
	left, right, both := squareJSON(0, 0, 1, 1), squareJSON(1, 0, 2, 1), squareJSON(0, 0, 2, 1)

	precincts := writeLayer(t, dir, "precincts",
		`{"type":"Feature","properties":{"PCT":"101","COUNTY":"Travis"},"geometry":`+left+`}`,
		`{"type":"Feature","properties":{"PCT":"102","COUNTY":"Travis"},"geometry":`+right+`}`,
	)

	layers := map[model.DistrictKey][]string{
		{Type: model.Congressional, Map: model.OldMap}: {districtFeature(10, both)},
		{Type: model.Congressional, Map: model.NewMap}: {districtFeature(37, left), districtFeature(35, right)},
		{Type: model.UpperChamber, Map: model.OldMap}:  {districtFeature(14, both)},
		{Type: model.UpperChamber, Map: model.NewMap}:  {districtFeature(14, both)},
		{Type: model.LowerChamber, Map: model.OldMap}:  {districtFeature(49, both)},
		{Type: model.LowerChamber, Map: model.NewMap}:  {districtFeature(49, both)},
	}
	districts := make(map[model.DistrictKey]config.LayerConfig, len(layers))
	for key, features := range layers {
		districts[key] = config.LayerConfig{Path: writeLayer(t, dir, key.String(), features...)}
	}

	return &config.Config{
		AgeReference:     model.DefaultAgeReference,
		Districts:        districts,
		Precincts:        config.LayerConfig{Path: precincts},
		VoterFile:        writeVoterFile(t, dir, defaultMix),
		DatabasePath:     filepath.Join(dir, "test.db"),
		ArtifactPath:     filepath.Join(dir, "model.json"),
		Trainer:          predict.DefaultTrainerOptions(),
		Epsilon:          1e-9,
		ChunkSize:        7,
		BatchSize:        3,
		Workers:          2,
		PredictorWorkers: 2,
	}
}

func statuses(results []model.StageResult) map[model.Stage]model.StageStatus {
	out := make(map[model.Stage]model.StageStatus, len(results))
	for _, r := range results {
		out[r.Stage] = r.Status
	}
	return out
}

func TestRunFallsBackWithoutEnoughLabels(t *testing.T) {
	db := testutil.SetupTestDB(t, nil)
	cfg := testConfig(t, t.TempDir())
	ctx := context.Background()

	results, err := New(db.Storage, cfg).Run(ctx, model.Stages)
	require.NoError(t, err)
	require.Len(t, results, len(model.Stages))

	got := statuses(results)
	assert.Equal(t, model.StatusSkipped, got[model.StageTrain])
	for _, stage := range []model.Stage{model.StageIngest, model.StageResolve, model.StageAssign, model.StageClassify, model.StagePredict, model.StageAggregate} {
		assert.Equal(t, model.StatusCompleted, got[stage], "stage %s", stage)
	}
	assert.Equal(t, string(model.MethodGeographic), results[5].Artifact)
	assert.Equal(t, 40, results[0].Counts["accepted"])

	report, err := db.Storage.GetLatestReport(ctx)
	require.NoError(t, err)
	assert.True(t, report.Modeled)
	assert.Equal(t, 40, report.Voters)

	cd, ok := report.Type(model.Congressional)
	require.True(t, ok)

	d37, ok := cd.New.District(37)
	require.True(t, ok)
	assert.Equal(t, 20, d37.Total)
	assert.Equal(t, 16, d37.Republican)
	assert.Equal(t, 4, d37.RepublicanModeled)
	assert.Equal(t, 4, d37.Democrat)

	d35, ok := cd.New.District(35)
	require.True(t, ok)
	assert.Equal(t, 17, d35.Democrat)
	assert.Equal(t, 5, d35.DemocratModeled)

	old, ok := cd.Old.District(10)
	require.True(t, ok)
	assert.Equal(t, 40, old.Total)
	assert.Equal(t, aggregate.Competitive, aggregate.Classify(old.RepPct, old.DemPct))

	assert.Equal(t, -1, cd.Comparison.Change(aggregate.Competitive).Change)
	assert.Equal(t, 1, cd.Comparison.Change(aggregate.SolidRepublican).Change)
	assert.Equal(t, 1, cd.Comparison.Change(aggregate.SolidDemocrat).Change)

	for _, v := range db.Voters() {
		cdNew := v.Assignment(model.DistrictKey{Type: model.Congressional, Map: model.NewMap})
		assert.Equal(t, model.SourcePrecinct, cdNew.Source, "voter %s", v.ID)
		assert.Equal(t, model.SourceRecord, v.Assignment(model.DistrictKey{Type: model.Congressional, Map: model.OldMap}).Source)
	}
}

func TestRunTrainsModelWhenLabelsSuffice(t *testing.T) {
	db := testutil.SetupTestDB(t, nil)
	cfg := testConfig(t, t.TempDir())
	cfg.Trainer.MinPerClass = 5
	cfg.Trainer.Epochs = 50
	ctx := context.Background()

	results, err := New(db.Storage, cfg).Run(ctx, model.Stages)
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, model.StatusCompleted, r.Status, "stage %s", r.Stage)
	}

	rec, err := db.Storage.GetLatestModelArtifact(ctx)
	require.NoError(t, err)
	assert.Equal(t, results[4].Artifact, rec.ID)
	assert.FileExists(t, cfg.ArtifactPath)

	for _, v := range db.Voters() {
		if v.Final.Source != model.SourceModeled {
			continue
		}
		require.NotNil(t, v.Prediction, "voter %s", v.ID)
		assert.Equal(t, model.MethodModel, v.Prediction.Method)
	}
}

func TestRunResumesCompletedStages(t *testing.T) {
	db := testutil.SetupTestDB(t, nil)
	cfg := testConfig(t, t.TempDir())
	ctx := context.Background()

	_, err := New(db.Storage, cfg).Run(ctx, model.Stages)
	require.NoError(t, err)

	again, err := New(db.Storage, cfg).Run(ctx, model.Stages)
	require.NoError(t, err)
	for _, r := range again {
		assert.Equal(t, model.StatusSkipped, r.Status, "stage %s", r.Stage)
	}

	forced := New(db.Storage, cfg, WithForce(true))
	results, err := forced.Run(ctx, []model.Stage{model.StageClassify, model.StageAggregate})
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, results[0].Status)
	assert.Equal(t, model.StatusCompleted, results[1].Status)

	last, err := db.Storage.LastStage(ctx, model.StageAggregate)
	require.NoError(t, err)
	assert.Equal(t, forced.RunID(), last.RunID)
}

func TestRunStageRequiresPrerequisites(t *testing.T) {
	db := testutil.SetupTestDB(t, nil)
	cfg := testConfig(t, t.TempDir())
	ctx := context.Background()

	r := New(db.Storage, cfg).RunStage(ctx, model.StageAggregate)
	assert.Equal(t, model.StatusFailed, r.Status)
	assert.ErrorIs(t, r.Err, common.ErrStageMissing)

	last, err := db.Storage.LastStage(ctx, model.StageAggregate)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, last.Status)
}

func TestIngestFailsWithoutVoterFile(t *testing.T) {
	db := testutil.SetupTestDB(t, nil)
	cfg := testConfig(t, t.TempDir())
	cfg.VoterFile = ""

	results, err := New(db.Storage, cfg).Run(context.Background(), model.Stages)
	require.ErrorIs(t, err, common.ErrMissingConfig)
	require.Len(t, results, 1)
	assert.Equal(t, model.StatusFailed, results[0].Status)
}

func TestAggregateWithoutPredictionsLeavesModeledEmpty(t *testing.T) {
	db := testutil.SetupTestDB(t, nil)
	cfg := testConfig(t, t.TempDir())
	ctx := context.Background()

	_, err := New(db.Storage, cfg).Run(ctx, []model.Stage{
		model.StageIngest, model.StageResolve, model.StageAssign, model.StageClassify, model.StageAggregate,
	})
	require.NoError(t, err)

	report, err := db.Storage.GetLatestReport(ctx)
	require.NoError(t, err)
	assert.False(t, report.Modeled)

	cd, _ := report.Type(model.Congressional)
	d37, ok := cd.New.District(37)
	require.True(t, ok)
	assert.Equal(t, 12, d37.Republican)
	assert.Equal(t, 4, d37.Unknown)
	assert.Zero(t, d37.RepublicanModeled)
}

func TestIngestCheckpointsExistingVoters(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)

	store, err := storage.NewSQLiteStorage(cfg.DatabasePath)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	ctx := context.Background()
	require.NoError(t, store.Migrate(ctx))

	checkpoints, err := store.NewCheckpointManager()
	require.NoError(t, err)

	e := New(store, cfg, WithCheckpointer(checkpoints))
	require.True(t, e.RunStage(ctx, model.StageIngest).OK())

	list, err := checkpoints.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list, "nothing to protect on first ingest")

	require.True(t, e.RunStage(ctx, model.StageIngest).OK())
	list, err = checkpoints.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].IsAuto)
	assert.Equal(t, 40, list[0].Voters)

	n, err := store.CountVoters(ctx)
	require.NoError(t, err)
	assert.Equal(t, 40, n)
}

type recordingProgress struct {
	started map[model.Stage]int
	added   int
	mu      sync.Mutex
}

func (p *recordingProgress) Start(stage model.Stage, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started == nil {
		p.started = make(map[model.Stage]int)
	}
	p.started[stage] = total
}

func (p *recordingProgress) Add(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.added += n
}

func (p *recordingProgress) Finish() {}

func TestRunReportsProgress(t *testing.T) {
	db := testutil.SetupTestDB(t, nil)
	cfg := testConfig(t, t.TempDir())
	progress := &recordingProgress{}

	_, err := New(db.Storage, cfg, WithProgress(progress)).Run(context.Background(), []model.Stage{
		model.StageIngest, model.StageClassify,
	})
	require.NoError(t, err)

	assert.Equal(t, -1, progress.started[model.StageIngest])
	assert.Equal(t, 40, progress.started[model.StageClassify])
	assert.Equal(t, 80, progress.added)
}

func TestRunHonorsCancellation(t *testing.T) {
	db := testutil.SetupTestDB(t, nil)
	cfg := testConfig(t, t.TempDir())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := New(db.Storage, cfg).Run(ctx, model.Stages)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, results)
}

func TestAggregateSeededVoters(t *testing.T) {
	voters := testutil.NewVoterBuilder().
		WithKnown(model.Republican, 6, 1, 2).
		WithKnown(model.Democrat, 2, 1, 2).
		WithModeled(model.LeanDemocrat, 2, 1, 2).
		InPrecinct("TRAVIS", "102").
		WithKnown(model.Democrat, 5, 1, 3).
		WithUnlabeled(3, 1, 3).
		Build()
	db := testutil.SetupTestDB(t, voters)
	ctx := context.Background()

	start := time.Now().Add(-time.Minute)
	for i, stage := range []model.Stage{model.StageIngest, model.StageAssign, model.StageClassify, model.StagePredict} {
		r := model.Completed(stage, "seed", nil)
		r.RunID = "seed"
		r.StartedAt = start.Add(time.Duration(i) * time.Second)
		require.NoError(t, db.Storage.RecordStage(ctx, r))
	}

	e := New(db.Storage, &config.Config{ChunkSize: 4}, WithRunID("aggregate-only"))
	r := e.RunStage(ctx, model.StageAggregate)
	require.True(t, r.OK(), "aggregate failed: %v", r.Err)
	assert.Equal(t, 18, r.Counts["voters"])
	assert.Equal(t, 1, r.Counts["modeled"])

	report, err := db.Storage.GetLatestReport(ctx)
	require.NoError(t, err)
	cd, _ := report.Type(model.Congressional)

	d2, ok := cd.GainsLosses.District(2)
	require.True(t, ok)
	assert.Equal(t, 6, d2.Republican)
	assert.Equal(t, 4, d2.Democrat)
	assert.Equal(t, 2, d2.DemocratModeled)

	d3, ok := cd.New.District(3)
	require.True(t, ok)
	assert.Equal(t, 5, d3.Democrat)
	assert.Equal(t, 3, d3.Unknown)
}

// codedPrecincts rewrites the precinct layer to key counties by FIPS code,
// the way state VTD files do, instead of the voter file's county names.
func codedPrecincts(t *testing.T, dir string, cfg *config.Config) {
	t.Helper()
	left, right := squareJSON(0, 0, 1, 1), squareJSON(1, 0, 2, 1)
	cfg.Precincts = config.LayerConfig{
		Path: writeLayer(t, dir, "vtds",
			`{"type":"Feature","properties":{"PCT":"101","CNTY":453},"geometry":`+left+`}`,
			`{"type":"Feature","properties":{"PCT":"102","CNTY":"0453"},"geometry":`+right+`}`,
		),
		CountyProperty: "CNTY",
	}
}

func TestResolveJoinsCountyCodesToVoterNames(t *testing.T) {
	newCD := model.DistrictKey{Type: model.Congressional, Map: model.NewMap}
	stages := []model.Stage{model.StageIngest, model.StageResolve, model.StageAssign}

	tests := []struct {
		name        string
		setup       func(t *testing.T, dir string, cfg *config.Config)
		wantSource  model.AssignmentSource
		wantUnnamed int
	}{
		{
			name: "derived from shared precinct codes",
			setup: func(_ *testing.T, _ string, cfg *config.Config) {
				cfg.DeriveCounties = true
			},
			wantSource: model.SourcePrecinct,
		},
		{
			name: "crosswalk file",
			setup: func(t *testing.T, dir string, cfg *config.Config) {
				path := filepath.Join(dir, "counties.csv")
				require.NoError(t, os.WriteFile(path, []byte("code,name\n453,Travis\n"), 0600))
				cfg.Precincts.CountyCrosswalk = path
			},
			wantSource: model.SourcePrecinct,
		},
		{
			name:       "no join configured",
			setup:      func(*testing.T, string, *config.Config) {},
			wantSource: model.SourceMissing,
		},
		{
			name: "crosswalk without the layer's county",
			setup: func(t *testing.T, dir string, cfg *config.Config) {
				path := filepath.Join(dir, "counties.csv")
				require.NoError(t, os.WriteFile(path, []byte("code,name\n201,Harris\n"), 0600))
				cfg.Precincts.CountyCrosswalk = path
			},
			wantSource:  model.SourceMissing,
			wantUnnamed: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := testutil.SetupTestDB(t, nil)
			dir := t.TempDir()
			cfg := testConfig(t, dir)
			codedPrecincts(t, dir, cfg)
			tt.setup(t, dir, cfg)

			results, err := New(db.Storage, cfg).Run(context.Background(), stages)
			require.NoError(t, err)
			require.Len(t, results, len(stages))
			for _, r := range results {
				require.Equal(t, model.StatusCompleted, r.Status, "stage %s: %v", r.Stage, r.Err)
			}
			assert.Equal(t, tt.wantUnnamed, results[1].Counts["unmapped_counties"])

			for _, v := range db.Voters() {
				a := v.Assignment(newCD)
				assert.Equal(t, tt.wantSource, a.Source, "voter %s", v.ID)
				if tt.wantSource == model.SourcePrecinct {
					want := 37
					if v.Precinct == "102" {
						want = 35
					}
					assert.Equal(t, want, a.ID, "voter %s", v.ID)
				}
			}
		})
	}
}
