package artifact

import (
	"errors"
	"fmt"
	"time"

	"bodytype/ml"
)

var (
	ErrArtifactMissing = errors.New("artifact missing")
	ErrArtifactCorrupt = errors.New("artifact corrupt")
	// ErrVersionMismatch is the same error the ml package reports, so callers
	// can match either.
	ErrVersionMismatch = ml.ErrVersionMismatch
)

const (
	FileManifest = "manifest.json"
	FileCodec    = "codec.json"
	FileLabels   = "labels.json"
	FileScaler   = "scaler.json"
	FileModel    = "model.json"
)

var componentFiles = []string{FileCodec, FileLabels, FileScaler, FileModel}

// Tag pins the conventions a bundle was fit under.
type Tag struct {
	Features string         `json:"features"`
	Labels   ml.LabelSource `json:"labels"`
}

type ClassMetrics struct {
	Label     string  `json:"label" csv:"label"`
	Precision float64 `json:"precision" csv:"precision"`
	Recall    float64 `json:"recall" csv:"recall"`
	Support   int     `json:"support" csv:"support"`
}

// Metrics are measured once on the held-out partition.
type Metrics struct {
	CVAccuracy   float64        `json:"cv_accuracy"`
	TestAccuracy float64        `json:"test_accuracy"`
	TrainRows    int            `json:"train_rows"`
	TestRows     int            `json:"test_rows"`
	Classes      []ClassMetrics `json:"classes"`
	Confusion    [][]int        `json:"confusion"`
}

type Manifest struct {
	RunID     string            `json:"run_id"`
	Tag       Tag               `json:"tag"`
	CreatedAt time.Time         `json:"created_at"`
	ModelType string            `json:"model_type"`
	Params    ml.Params         `json:"params"`
	Metrics   Metrics           `json:"metrics"`
	Files     map[string]string `json:"files"`
}

// Bundle is every fitted component of one training run. Components from
// different runs are never mixed.
type Bundle struct {
	Manifest Manifest
	Codec    *ml.Codec
	Labels   *ml.LabelMapping
	Scaler   *ml.Scaler
	Model    ml.Classifier

	// Dir is set when the bundle was read from disk.
	Dir string
}

// Expectation is what the loading process requires of a bundle. An empty
// Features means the compiled feature layout; an empty Labels accepts any
// label source.
type Expectation struct {
	Features string
	Labels   ml.LabelSource
}

func (e Expectation) check(tag Tag) error {
	features := e.Features
	if features == "" {
		features = ml.FeatureSpecVersion
	}
	if tag.Features != features {
		return fmt.Errorf("%w: bundle features %q, expected %q", ErrVersionMismatch, tag.Features, features)
	}
	if e.Labels != "" && tag.Labels != e.Labels {
		return fmt.Errorf("%w: bundle labels from %q, expected %q", ErrVersionMismatch, tag.Labels, e.Labels)
	}
	return nil
}

func (b *Bundle) validate() error {
	switch {
	case b == nil:
		return errors.New("bundle is nil")
	case b.Codec == nil:
		return errors.New("bundle has no codec")
	case b.Labels == nil:
		return errors.New("bundle has no label mapping")
	case b.Scaler == nil:
		return errors.New("bundle has no scaler")
	case b.Model == nil:
		return errors.New("bundle has no model")
	}
	if b.Model.NumClasses() > b.Labels.Len() {
		return fmt.Errorf("%w: model has %d classes, label mapping has %d", ErrArtifactCorrupt, b.Model.NumClasses(), b.Labels.Len())
	}
	return nil
}
