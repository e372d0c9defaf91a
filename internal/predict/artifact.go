package predict

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/Veraticus/redistrict-impact/internal/features"
)

// ArtifactVersion is bumped when the artifact layout changes.
const ArtifactVersion = 1

// ErrManifestMismatch means an artifact was trained on different feature columns.
var ErrManifestMismatch = errors.New("model artifact feature manifest does not match")

// Artifact is everything needed to reproduce predictions: the fitted model,
// the encoders and aggregates it was trained with, and its metrics.
type Artifact struct {
	TrainedAt  time.Time            `json:"trained_at"`
	Aggregates *features.Aggregates `json:"aggregates"`
	Encoders   *features.Encoders   `json:"encoders"`
	Model      *LogisticModel       `json:"model"`
	Metrics    *Metrics             `json:"metrics"`
	ID         string               `json:"id"`
	Columns    []string             `json:"columns"`
	Version    int                  `json:"version"`
}

// NewArtifact bundles a trained model.
func NewArtifact(id string, m *LogisticModel, metrics *Metrics, builder *features.Builder, enc *features.Encoders) *Artifact {
	return &Artifact{
		ID:         id,
		Version:    ArtifactVersion,
		TrainedAt:  time.Now().UTC(),
		Columns:    slices.Clone(features.Columns),
		Model:      m,
		Metrics:    metrics,
		Encoders:   enc,
		Aggregates: builder.Aggregates(),
	}
}

// Validate checks the artifact can be applied with the current feature builder.
func (a *Artifact) Validate() error {
	if a.Model == nil {
		return fmt.Errorf("%w: no model", ErrManifestMismatch)
	}
	if !slices.Equal(a.Columns, features.Columns) {
		return fmt.Errorf("%w: artifact has %d columns, builder has %d", ErrManifestMismatch, len(a.Columns), len(features.Columns))
	}
	n := len(a.Columns)
	if len(a.Model.Weights) != n || len(a.Model.Means) != n || len(a.Model.Scales) != n || len(a.Model.Medians) != n {
		return fmt.Errorf("%w: model vectors do not match %d columns", ErrManifestMismatch, n)
	}
	return nil
}

// Marshal encodes the artifact as JSON.
func (a *Artifact) Marshal() ([]byte, error) {
	return json.Marshal(a)
}

// UnmarshalArtifact decodes and validates an artifact.
func UnmarshalArtifact(data []byte) (*Artifact, error) {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to decode model artifact: %w", err)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if a.Aggregates == nil {
		a.Aggregates = features.NewAggregates()
	}
	if a.Encoders == nil {
		a.Encoders = &features.Encoders{}
	}
	return &a, nil
}

// Save writes the artifact atomically.
func (a *Artifact) Save(path string) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode model artifact: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// LoadArtifact reads an artifact from disk.
func LoadArtifact(path string) (*Artifact, error) {
	// #nosec G304 - artifact path comes from operator configuration
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model artifact: %w", err)
	}
	return UnmarshalArtifact(data)
}
