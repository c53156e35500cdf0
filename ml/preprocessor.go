package ml

import (
	"errors"
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
)

// Scaler standardises derived feature vectors with statistics fixed at fit
// time. It is never refit after construction.
type Scaler struct {
	Version  string    `json:"version"`
	Features []string  `json:"features"`
	Mean     []float64 `json:"mean"`
	Std      []float64 `json:"std"`
}

func FitScaler(rows [][]float64) (*Scaler, error) {
	if len(rows) == 0 {
		return nil, errors.New("cannot fit scaler on empty matrix")
	}
	names := FeatureNames()
	columns := make([][]float64, len(names))
	for i, row := range rows {
		if len(row) != len(names) {
			return nil, fmt.Errorf("row %d has %d features, want %d", i, len(row), len(names))
		}
		for j, value := range row {
			columns[j] = append(columns[j], value)
		}
	}

	scaler := &Scaler{
		Version:  FeatureSpecVersion,
		Features: names,
		Mean:     make([]float64, len(names)),
		Std:      make([]float64, len(names)),
	}
	for j, column := range columns {
		mean, err := stats.Mean(column)
		if err != nil {
			return nil, fmt.Errorf("mean of %s: %w", names[j], err)
		}
		std, err := stats.StandardDeviationPopulation(column)
		if err != nil {
			return nil, fmt.Errorf("std of %s: %w", names[j], err)
		}
		if std == 0 || math.IsNaN(std) {
			return nil, fmt.Errorf("%w: %s has zero variance", ErrDegenerateFeature, names[j])
		}
		scaler.Mean[j] = mean
		scaler.Std[j] = std
	}
	return scaler, nil
}

// Check rejects a scaler fit against a different feature layout.
func (s *Scaler) Check(version string) error {
	if s.Version != version {
		return fmt.Errorf("%w: scaler fit for %q, running %q", ErrVersionMismatch, s.Version, version)
	}
	if len(s.Mean) != len(s.Features) || len(s.Std) != len(s.Features) {
		return fmt.Errorf("%w: scaler has %d features but %d/%d statistics", ErrVersionMismatch, len(s.Features), len(s.Mean), len(s.Std))
	}
	names := FeatureNames()
	if len(s.Features) != len(names) {
		return fmt.Errorf("%w: scaler has %d features, want %d", ErrVersionMismatch, len(s.Features), len(names))
	}
	for i, name := range names {
		if s.Features[i] != name {
			return fmt.Errorf("%w: scaler feature %d is %s, want %s", ErrVersionMismatch, i, s.Features[i], name)
		}
		if s.Std[i] == 0 {
			return fmt.Errorf("%w: %s has zero scale", ErrDegenerateFeature, name)
		}
	}
	return nil
}

func (s *Scaler) Transform(vector []float64) ([]float64, error) {
	if len(vector) != len(s.Mean) {
		return nil, fmt.Errorf("vector has %d features, scaler expects %d", len(vector), len(s.Mean))
	}
	scaled := make([]float64, len(vector))
	for i, value := range vector {
		scaled[i] = (value - s.Mean[i]) / s.Std[i]
	}
	return scaled, nil
}

func (s *Scaler) TransformAll(rows [][]float64) ([][]float64, error) {
	scaled := make([][]float64, len(rows))
	for i, row := range rows {
		vector, err := s.Transform(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		scaled[i] = vector
	}
	return scaled, nil
}
