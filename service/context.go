package service

import (
	"errors"
	"fmt"
	"time"

	"bodytype/artifact"
	"bodytype/ml"
)

// requestFields maps request field names to the categorical columns behind
// them.
var requestFields = map[string]string{
	"gender":   ml.ColumnGender,
	"activity": ml.ColumnActivity,
	"goal":     ml.ColumnGoal,
}

// Context is everything a prediction reads. It is built once from a loaded
// bundle and never modified, so any number of requests may share it.
type Context struct {
	bundle   *artifact.Bundle
	loadedAt time.Time
}

type Prediction struct {
	BodyType       string  `json:"body_type"`
	BMI            float64 `json:"bmi"`
	Confidence     float64 `json:"confidence"`
	Recommendation string  `json:"recommendation"`
	RunID          string  `json:"run_id"`
}

type Schema struct {
	RunID          string              `json:"run_id"`
	ModelType      string              `json:"model_type"`
	FeatureVersion string              `json:"feature_version"`
	LabelSource    ml.LabelSource      `json:"label_source"`
	Features       []string            `json:"features"`
	Categories     map[string][]string `json:"categories"`
	Labels         []string            `json:"labels"`
	Metrics        artifact.Metrics    `json:"metrics"`
	TrainedAt      time.Time           `json:"trained_at"`
	LoadedAt       time.Time           `json:"loaded_at"`
}

func NewContext(bundle *artifact.Bundle) (*Context, error) {
	if bundle == nil || bundle.Codec == nil || bundle.Labels == nil || bundle.Scaler == nil || bundle.Model == nil {
		return nil, errors.New("incomplete bundle")
	}
	if bundle.Manifest.Tag.Features != ml.FeatureSpecVersion {
		return nil, fmt.Errorf("%w: bundle features %q, service expects %q", ml.ErrVersionMismatch, bundle.Manifest.Tag.Features, ml.FeatureSpecVersion)
	}
	if err := bundle.Scaler.Check(ml.FeatureSpecVersion); err != nil {
		return nil, err
	}
	return &Context{bundle: bundle, loadedAt: time.Now().UTC()}, nil
}

func (c *Context) RunID() string {
	return c.bundle.Manifest.RunID
}

func (c *Context) Manifest() artifact.Manifest {
	return c.bundle.Manifest
}

// Vector derives and scales a record with the loaded codec and scaler.
func (c *Context) Vector(record ml.RawRecord) ([]float64, error) {
	derived, err := ml.Derive(record, c.bundle.Codec)
	if err != nil {
		return nil, err
	}
	return c.bundle.Scaler.Transform(derived)
}

func (c *Context) Predict(record ml.RawRecord) (Prediction, error) {
	vector, err := c.Vector(record)
	if err != nil {
		return Prediction{}, err
	}
	class, confidence, err := c.bundle.Model.Predict(vector)
	if err != nil {
		return Prediction{}, fmt.Errorf("classify: %w", err)
	}
	label, err := c.bundle.Labels.Decode(class)
	if err != nil {
		return Prediction{}, fmt.Errorf("decode class %d: %w", class, err)
	}
	bmi, err := ml.BMI(record.Height, record.Weight)
	if err != nil {
		return Prediction{}, err
	}
	return Prediction{
		BodyType:       label,
		BMI:            round2(bmi),
		Confidence:     confidence,
		Recommendation: Recommendation(bmi),
		RunID:          c.RunID(),
	}, nil
}

// Schema describes what the loaded bundle accepts and returns.
func (c *Context) Schema() Schema {
	manifest := c.bundle.Manifest
	categories := make(map[string][]string, len(requestFields))
	for field, column := range requestFields {
		categories[field] = c.bundle.Codec.Values(column)
	}
	return Schema{
		RunID:          manifest.RunID,
		ModelType:      manifest.ModelType,
		FeatureVersion: manifest.Tag.Features,
		LabelSource:    manifest.Tag.Labels,
		Features:       ml.FeatureNames(),
		Categories:     categories,
		Labels:         c.bundle.Labels.Labels(),
		Metrics:        manifest.Metrics,
		TrainedAt:      manifest.CreatedAt,
		LoadedAt:       c.loadedAt,
	}
}
