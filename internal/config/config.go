package config

import (
	"fmt"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Veraticus/redistrict-impact/internal/common"
	"github.com/Veraticus/redistrict-impact/internal/geo"
	"github.com/Veraticus/redistrict-impact/internal/ingest"
	"github.com/Veraticus/redistrict-impact/internal/model"
	"github.com/Veraticus/redistrict-impact/internal/predict"
	"github.com/Veraticus/redistrict-impact/internal/service"
)

// DefaultDatabasePath is used when database.path is unset.
const DefaultDatabasePath = "$HOME/.local/share/redistrict/redistrict.db"

// DefaultArtifactPath is used when model.artifact_path is unset.
const DefaultArtifactPath = "$HOME/.local/share/redistrict/model.json"

const dateLayout = "2006-01-02"

// LayerConfig locates one GeoJSON layer. CountyCrosswalk applies to the
// precinct layer only.
type LayerConfig struct {
	Path            string
	IDProperty      string
	CountyProperty  string
	CountyCrosswalk string
}

// Config is the explicit configuration handed to every stage.
type Config struct {
	AgeReference time.Time

	Districts map[model.DistrictKey]LayerConfig
	Precincts LayerConfig

	VoterFile    string
	DatabasePath string
	ArtifactPath string
	CRS          string

	Trainer predict.TrainerOptions
	Retry   service.RetryOptions

	Epsilon          float64
	ChunkSize        int
	BatchSize        int
	Workers          int
	PredictorWorkers int

	// DeriveCounties infers the precinct layer's county crosswalk from shared
	// precinct codes when no crosswalk file is configured.
	DeriveCounties bool

	pathProblems []string
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	trainer := predict.DefaultTrainerOptions()

	v.SetDefault("database.path", DefaultDatabasePath)
	v.SetDefault("voters.chunk_size", ingest.DefaultChunkSize)
	v.SetDefault("voters.age_reference", model.DefaultAgeReference.Format(dateLayout))
	v.SetDefault("geography.epsilon", geo.DefaultResolverOptions().Epsilon)
	v.SetDefault("geography.workers", runtime.NumCPU())
	v.SetDefault("geography.precincts.derive_counties", true)
	v.SetDefault("model.artifact_path", DefaultArtifactPath)
	v.SetDefault("model.sample_cap", trainer.SampleCap)
	v.SetDefault("model.test_fraction", trainer.TestFraction)
	v.SetDefault("model.seed", trainer.Seed)
	v.SetDefault("model.epochs", trainer.Epochs)
	v.SetDefault("model.learning_rate", trainer.LearningRate)
	v.SetDefault("model.l2", trainer.L2)
	v.SetDefault("model.min_labeled_per_class", trainer.MinPerClass)
	v.SetDefault("model.min_accuracy", trainer.MinAccuracy)
	v.SetDefault("predict.batch_size", predict.DefaultBatchSize)
	v.SetDefault("predict.workers", runtime.NumCPU())
	v.SetDefault("retry.max_attempts", 5)
	v.SetDefault("retry.initial_delay", 100*time.Millisecond)
	v.SetDefault("retry.max_delay", 5*time.Second)
	v.SetDefault("retry.multiplier", 2.0)
}

// LayerKey is the viper key prefix for a district layer, e.g.
// "geography.districts.2026_cd".
func LayerKey(key model.DistrictKey) string {
	return "geography.districts." + strings.ToLower(key.String())
}

// Load builds a validated Config from v. Paths are expanded.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	ref, err := time.Parse(dateLayout, v.GetString("voters.age_reference"))
	if err != nil {
		return nil, fmt.Errorf("%w: voters.age_reference: %v", common.ErrInvalidConfig, err)
	}

	paths := &pathExpander{}
	cfg := &Config{
		AgeReference: ref,
		Districts:    make(map[model.DistrictKey]LayerConfig),
		Precincts:    layerFrom(v, "geography.precincts", paths),
		VoterFile:    paths.expand("voters.path", v.GetString("voters.path")),
		DatabasePath: paths.expand("database.path", v.GetString("database.path")),
		ArtifactPath: paths.expand("model.artifact_path", v.GetString("model.artifact_path")),
		Trainer: predict.TrainerOptions{
			SampleCap:    v.GetInt("model.sample_cap"),
			TestFraction: v.GetFloat64("model.test_fraction"),
			Seed:         v.GetUint64("model.seed"),
			Epochs:       v.GetInt("model.epochs"),
			LearningRate: v.GetFloat64("model.learning_rate"),
			L2:           v.GetFloat64("model.l2"),
			MinPerClass:  v.GetInt("model.min_labeled_per_class"),
			MinAccuracy:  v.GetFloat64("model.min_accuracy"),
		},
		Retry: service.RetryOptions{
			MaxAttempts:  v.GetInt("retry.max_attempts"),
			InitialDelay: v.GetDuration("retry.initial_delay"),
			MaxDelay:     v.GetDuration("retry.max_delay"),
			Multiplier:   v.GetFloat64("retry.multiplier"),
		},
		Epsilon:          v.GetFloat64("geography.epsilon"),
		ChunkSize:        v.GetInt("voters.chunk_size"),
		BatchSize:        v.GetInt("predict.batch_size"),
		Workers:          v.GetInt("geography.workers"),
		PredictorWorkers: v.GetInt("predict.workers"),
		DeriveCounties:   v.GetBool("geography.precincts.derive_counties"),
	}

	// Layers declare their own reference system unless overridden here.
	if crs := v.GetString("geography.crs"); crs != "" {
		cfg.CRS = geo.NormalizeCRS(crs)
	}

	for _, key := range model.AllDistrictKeys() {
		layer := layerFrom(v, LayerKey(key), paths)
		if layer.Path != "" {
			cfg.Districts[key] = layer
		}
	}

	cfg.Precincts.CountyCrosswalk = paths.expand("geography.precincts.county_crosswalk",
		v.GetString("geography.precincts.county_crosswalk"))
	cfg.pathProblems = paths.problems

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func layerFrom(v *viper.Viper, prefix string, paths *pathExpander) LayerConfig {
	return LayerConfig{
		Path:           paths.expand(prefix+".path", v.GetString(prefix+".path")),
		IDProperty:     v.GetString(prefix + ".id_property"),
		CountyProperty: v.GetString(prefix + ".county_property"),
	}
}

// Validate checks numeric settings. Input paths are checked by the stages
// that need them.
func (c *Config) Validate() error {
	problems := slices.Clone(c.pathProblems)
	if c.ChunkSize <= 0 {
		problems = append(problems, "voters.chunk_size must be positive")
	}
	if c.BatchSize <= 0 {
		problems = append(problems, "predict.batch_size must be positive")
	}
	if c.Workers <= 0 || c.PredictorWorkers <= 0 {
		problems = append(problems, "worker counts must be positive")
	}
	if c.Epsilon < 0 {
		problems = append(problems, "geography.epsilon must not be negative")
	}
	if c.Trainer.TestFraction <= 0 || c.Trainer.TestFraction >= 1 {
		problems = append(problems, "model.test_fraction must be between 0 and 1")
	}
	if c.Trainer.SampleCap <= 0 {
		problems = append(problems, "model.sample_cap must be positive")
	}
	if c.Trainer.MinPerClass < 1 {
		problems = append(problems, "model.min_labeled_per_class must be at least 1")
	}
	if c.DatabasePath == "" {
		problems = append(problems, "database.path is required")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", common.ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// RequireVoterFile reports whether an input voter file is configured.
func (c *Config) RequireVoterFile() error {
	if c.VoterFile == "" {
		return fmt.Errorf("%w: voters.path", common.ErrMissingConfig)
	}
	return nil
}

// RequireLayers reports whether the precinct layer and every district layer
// are configured.
func (c *Config) RequireLayers() error {
	var missing []string
	if c.Precincts.Path == "" {
		missing = append(missing, "geography.precincts.path")
	}
	for _, key := range model.AllDistrictKeys() {
		if _, ok := c.Districts[key]; !ok {
			missing = append(missing, LayerKey(key)+".path")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", common.ErrMissingConfig, strings.Join(missing, ", "))
	}
	return nil
}

// IngestOptions derives voter parsing options.
func (c *Config) IngestOptions() ingest.Options {
	return ingest.Options{AgeReference: c.AgeReference, ChunkSize: c.ChunkSize}
}

// ResolverOptions derives geometry overlay options.
func (c *Config) ResolverOptions() geo.ResolverOptions {
	return geo.ResolverOptions{Epsilon: c.Epsilon, Workers: c.Workers}
}

// RunOptions derives batch prediction options.
func (c *Config) RunOptions() predict.RunOptions {
	return predict.RunOptions{BatchSize: c.BatchSize, Workers: c.PredictorWorkers}
}

// PrecinctLoadOptions derives load options for the precinct layer.
func (c *Config) PrecinctLoadOptions() geo.LoadOptions {
	return geo.LoadOptions{
		Name:           "precincts",
		CRS:            c.CRS,
		IDProperty:     c.Precincts.IDProperty,
		CountyProperty: c.Precincts.CountyProperty,
		Kind:           geo.PrecinctLayer,
	}
}

// DistrictLoadOptions derives load options for one district layer.
func (c *Config) DistrictLoadOptions(key model.DistrictKey) geo.LoadOptions {
	layer := c.Districts[key]
	return geo.LoadOptions{
		Name:       key.String(),
		CRS:        c.CRS,
		IDProperty: layer.IDProperty,
		Kind:       geo.DistrictLayer,
	}
}
