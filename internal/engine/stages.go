package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/google/uuid"

	"github.com/Veraticus/redistrict-impact/internal/aggregate"
	"github.com/Veraticus/redistrict-impact/internal/assign"
	"github.com/Veraticus/redistrict-impact/internal/classification"
	"github.com/Veraticus/redistrict-impact/internal/common"
	"github.com/Veraticus/redistrict-impact/internal/features"
	"github.com/Veraticus/redistrict-impact/internal/geo"
	"github.com/Veraticus/redistrict-impact/internal/ingest"
	"github.com/Veraticus/redistrict-impact/internal/model"
	"github.com/Veraticus/redistrict-impact/internal/predict"
	"github.com/Veraticus/redistrict-impact/internal/service"
)

func (e *Engine) ingest(ctx context.Context) model.StageResult {
	const stage = model.StageIngest
	if err := e.cfg.RequireVoterFile(); err != nil {
		return model.Failed(stage, err)
	}
	if err := e.checkpoint(ctx, stage); err != nil {
		return model.Failed(stage, fmt.Errorf("failed to checkpoint before ingest: %w", err))
	}
	if err := e.store.DeleteVoters(ctx); err != nil {
		return model.Failed(stage, err)
	}

	e.progress.Start(stage, -1)
	stats, err := ingest.ScanFile(ctx, e.cfg.VoterFile, e.cfg.IngestOptions(), func(batch []model.Voter) error {
		if err := e.store.SaveVoters(ctx, batch); err != nil {
			return err
		}
		e.progress.Add(len(batch))
		return nil
	})
	e.progress.Finish()
	if err != nil {
		return model.Failed(stage, err)
	}

	counts := map[string]int{
		"rows":     stats.Rows,
		"accepted": stats.Accepted,
		"rejected": stats.Rejected,
	}
	for reason, n := range stats.Rejections {
		counts["rejected: "+reason] = n
	}
	if stats.Rejected > 0 {
		common.LogWarn("Rejected voter rows", common.Fields{"rejected": stats.Rejected, "reasons": stats.Rejections})
	}
	return model.Completed(stage, e.cfg.VoterFile, counts)
}

func (e *Engine) resolve(ctx context.Context) model.StageResult {
	const stage = model.StageResolve
	if err := e.cfg.RequireLayers(); err != nil {
		return model.Failed(stage, err)
	}

	excluded := 0
	precincts, report, err := geo.LoadLayer(e.cfg.Precincts.Path, e.cfg.PrecinctLoadOptions())
	if report != nil {
		excluded += len(report.Invalid)
	}
	if err != nil {
		return model.Failed(stage, err)
	}
	unmappedCounties, err := e.joinCounties(ctx, precincts)
	if err != nil {
		return model.Failed(stage, err)
	}

	keys := model.AllDistrictKeys()
	districts := make(geo.DistrictLayers, len(keys))
	for _, key := range keys {
		layer, report, err := geo.LoadLayer(e.cfg.Districts[key].Path, e.cfg.DistrictLoadOptions(key))
		if report != nil {
			excluded += len(report.Invalid)
		}
		if err != nil {
			return model.Failed(stage, err)
		}
		districts[key] = layer
	}

	e.progress.Start(stage, -1)
	res, err := geo.NewResolver(e.cfg.ResolverOptions()).Resolve(ctx, precincts, districts, keys)
	e.progress.Finish()
	if err != nil {
		return model.Failed(stage, err)
	}

	if err := e.store.SaveResolution(ctx, res.Overlaps, res.Assignments); err != nil {
		return model.Failed(stage, err)
	}

	unassigned := res.Unassigned()
	for _, a := range unassigned {
		slog.Debug("Precinct has no district", "precinct", a.Precinct, "key", a.Key)
	}

	return model.Completed(stage, "precinct_assignments", map[string]int{
		"precincts":         res.Precincts,
		"overlaps":          len(res.Overlaps),
		"assignments":       len(res.Assignments),
		"unassigned":        len(unassigned),
		"overcovered":       len(res.Overcovered()),
		"unmapped_counties": len(unmappedCounties),
		"excluded_features": excluded,
	})
}

// joinCounties rekeys the precinct layer onto the voter file's county names,
// from the configured crosswalk or, failing that, one derived from shared
// precinct codes. It returns layer counties left without a name.
func (e *Engine) joinCounties(ctx context.Context, precincts *geo.Layer) ([]string, error) {
	var crosswalk geo.CountyCrosswalk
	switch {
	case e.cfg.Precincts.CountyCrosswalk != "":
		cw, err := geo.LoadCountyCrosswalk(e.cfg.Precincts.CountyCrosswalk)
		if err != nil {
			return nil, err
		}
		crosswalk = cw
	case e.cfg.DeriveCounties:
		keys, err := e.voterPrecincts(ctx)
		if errors.Is(err, common.ErrNoVoters) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if geo.SharesCounties(precincts, keys) {
			return nil, nil
		}
		crosswalk = geo.DeriveCountyCrosswalk(precincts, keys)
		slog.Info("Derived county crosswalk from shared precinct codes", "counties", len(crosswalk))
	default:
		return nil, nil
	}

	unmapped := precincts.RekeyCounties(crosswalk)
	if len(unmapped) > 0 {
		common.LogWarn("Precinct counties missing from crosswalk", common.Fields{
			"count":    len(unmapped),
			"counties": unmapped,
		})
	}
	return unmapped, nil
}

// voterPrecincts returns the distinct precinct keys of stored voters.
func (e *Engine) voterPrecincts(ctx context.Context) ([]model.PrecinctKey, error) {
	seen := make(map[model.PrecinctKey]struct{})
	var keys []model.PrecinctKey
	_, err := e.readVoters(ctx, model.StageResolve, func(batch []model.Voter) error {
		for i := range batch {
			k := batch[i].PrecinctKey()
			if _, ok := seen[k]; ok || k.Empty() {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
		return nil
	})
	return keys, err
}

func (e *Engine) assign(ctx context.Context) model.StageResult {
	const stage = model.StageAssign

	assignments, err := e.store.GetPrecinctAssignments(ctx)
	if err != nil {
		return model.Failed(stage, err)
	}
	if len(assignments) == 0 {
		slog.Warn("No resolved precincts; districts will come from voter records only")
	}

	mapper := assign.NewMapper(geo.NewPrecinctTable(assignments))
	summary := &assign.Summary{}
	if _, err := e.rewriteVoters(ctx, stage, func(batch []model.Voter) error {
		summary.Merge(mapper.AssignAll(batch))
		return nil
	}); err != nil {
		return model.Failed(stage, err)
	}

	return model.Completed(stage, "voters", summary.Counts())
}

func (e *Engine) classify(ctx context.Context) model.StageResult {
	const stage = model.StageClassify

	var summary classification.Summary
	if _, err := e.rewriteVoters(ctx, stage, func(batch []model.Voter) error {
		summary.Merge(classification.ClassifyAll(batch))
		return nil
	}); err != nil {
		return model.Failed(stage, err)
	}

	slog.Info("Classified primary history",
		"republican", summary.Republican,
		"democrat", summary.Democrat,
		"swing", summary.Swing,
		"unknown", summary.Unknown)
	return model.Completed(stage, "voters", summary.Counts())
}

func (e *Engine) train(ctx context.Context) model.StageResult {
	const stage = model.StageTrain

	fitter := features.NewEncoderFitter()
	agg := features.NewAggregates()
	if _, err := e.readVoters(ctx, stage, func(batch []model.Voter) error {
		for i := range batch {
			fitter.Observe(&batch[i])
			agg.Add(&batch[i])
		}
		return nil
	}); err != nil {
		return model.Failed(stage, err)
	}

	enc := fitter.Encoders()
	builder := features.NewBuilder(agg, enc)
	trainer := predict.NewTrainer(e.cfg.Trainer)
	opts := trainer.Options()

	collector := predict.NewSampleCollector(builder, opts.SampleCap, opts.Seed)
	if _, err := e.readVoters(ctx, stage, func(batch []model.Voter) error {
		collector.AddAll(batch)
		return nil
	}); err != nil {
		return model.Failed(stage, err)
	}

	fitted, metrics, err := trainer.Train(ctx, collector.Samples())
	if errors.Is(err, predict.ErrInsufficientTrainingData) {
		rep, dem := collector.Seen()
		r := model.Skipped(stage, err.Error())
		r.Counts = map[string]int{"republican": rep, "democrat": dem, "required_per_class": opts.MinPerClass}
		return r
	}
	if err != nil {
		return model.Failed(stage, err)
	}

	artifact := predict.NewArtifact(uuid.NewString(), fitted, metrics, builder, enc)
	if e.cfg.ArtifactPath != "" {
		if err := artifact.Save(e.cfg.ArtifactPath); err != nil {
			return model.Failed(stage, err)
		}
	}
	data, err := artifact.Marshal()
	if err != nil {
		return model.Failed(stage, err)
	}
	if err := e.store.SaveModelArtifact(ctx, &service.ModelRecord{
		TrainedAt:    artifact.TrainedAt,
		ID:           artifact.ID,
		Path:         e.cfg.ArtifactPath,
		Data:         data,
		TestAccuracy: metrics.TestAccuracy,
		Degraded:     metrics.Degraded,
	}); err != nil {
		return model.Failed(stage, err)
	}

	if metrics.Degraded {
		slog.Warn("Model accuracy below threshold", "test_accuracy", metrics.TestAccuracy, "threshold", opts.MinAccuracy)
	}
	for i, fw := range metrics.Importance {
		if i == 5 {
			break
		}
		slog.Info("Feature weight", "column", fw.Column, "weight", fw.Weight)
	}

	degraded := 0
	if metrics.Degraded {
		degraded = 1
	}
	return model.Completed(stage, artifact.ID, map[string]int{
		"train_size":        metrics.TrainSize,
		"test_size":         metrics.TestSize,
		"republican":        metrics.Republican,
		"democrat":          metrics.Democrat,
		"test_accuracy_pct": int(math.Round(metrics.TestAccuracy * 100)),
		"degraded":          degraded,
	})
}

func (e *Engine) predict(ctx context.Context) model.StageResult {
	const stage = model.StagePredict

	p, err := e.predictor(ctx)
	if err != nil {
		return model.Failed(stage, err)
	}

	opts := e.cfg.RunOptions()
	summary := &predict.RunSummary{}
	if _, err := e.rewriteVoters(ctx, stage, func(batch []model.Voter) error {
		s, err := predict.Run(ctx, batch, p, opts)
		if err != nil {
			return err
		}
		summary.Merge(s)
		return nil
	}); err != nil {
		return model.Failed(stage, err)
	}

	return model.Completed(stage, string(p.Method()), summary.Counts())
}

// predictor uses the latest trained model unless training last fell back or
// never produced one.
func (e *Engine) predictor(ctx context.Context) (predict.Predictor, error) {
	last, err := e.store.LastStage(ctx, model.StageTrain)
	switch {
	case err == nil && last.Status == model.StatusSkipped:
		slog.Warn("Training was skipped; using geographic fallback", "reason", last.Reason)
		return e.fallback(ctx)
	case err != nil && !errors.Is(err, common.ErrNotFound):
		return nil, err
	}

	rec, err := e.store.GetLatestModelArtifact(ctx)
	if errors.Is(err, common.ErrNotFound) {
		slog.Warn("No trained model; using geographic fallback")
		return e.fallback(ctx)
	}
	if err != nil {
		return nil, err
	}

	artifact, err := predict.UnmarshalArtifact(rec.Data)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", rec.ID, err)
	}
	slog.Info("Using trained model", "id", artifact.ID, "test_accuracy", rec.TestAccuracy, "degraded", rec.Degraded)
	return predict.NewModelPredictor(artifact), nil
}

func (e *Engine) fallback(ctx context.Context) (predict.Predictor, error) {
	agg := features.NewAggregates()
	if _, err := e.readVoters(ctx, model.StagePredict, func(batch []model.Voter) error {
		for i := range batch {
			agg.Add(&batch[i])
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return predict.NewGeographicFallback(agg), nil
}

func (e *Engine) aggregate(ctx context.Context) model.StageResult {
	const stage = model.StageAggregate

	// Predictions from before the latest ingest no longer exist on the voters.
	modeled, err := e.completedAfter(ctx, model.StagePredict, model.StageIngest)
	if err != nil {
		return model.Failed(stage, err)
	}
	if !modeled {
		slog.Info("Aggregating known labels only; modeled columns will be empty")
	}

	builder := aggregate.NewBuilder(aggregate.Options{IncludeModeled: modeled})
	if _, err := e.readVoters(ctx, stage, func(batch []model.Voter) error {
		builder.AddAll(batch)
		return nil
	}); err != nil {
		return model.Failed(stage, err)
	}

	report, err := builder.Report()
	if err != nil {
		return model.Failed(stage, err)
	}
	if err := e.store.SaveReport(ctx, e.runID, report); err != nil {
		return model.Failed(stage, err)
	}

	counts := map[string]int{"voters": report.Voters}
	for key, n := range report.Missing() {
		counts["missing_"+key] = n
	}
	if modeled {
		counts["modeled"] = 1
	}
	return model.Completed(stage, e.runID, counts)
}
