package ml

import (
	"errors"
	"math"
	"testing"
)

func TestScalerStandardises(t *testing.T) {
	rows := [][]float64{
		{20, 0, 0, 0, 18},
		{30, 1, 1, 1, 22},
		{40, 0, 2, 2, 26},
		{50, 1, 0, 1, 30},
	}
	scaler, err := FitScaler(rows)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	scaled, err := scaler.TransformAll(rows)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for j := range rows[0] {
		var sum, sq float64
		for i := range scaled {
			sum += scaled[i][j]
		}
		mean := sum / float64(len(scaled))
		for i := range scaled {
			sq += (scaled[i][j] - mean) * (scaled[i][j] - mean)
		}
		std := math.Sqrt(sq / float64(len(scaled)))
		if math.Abs(mean) > 1e-9 {
			t.Fatalf("column %d: expected mean 0, got %v", j, mean)
		}
		if math.Abs(std-1) > 1e-9 {
			t.Fatalf("column %d: expected std 1, got %v", j, std)
		}
	}
}

func TestScalerDegenerateFeature(t *testing.T) {
	rows := [][]float64{
		{20, 0, 0, 1, 18},
		{30, 1, 1, 1, 22},
	}
	if _, err := FitScaler(rows); !errors.Is(err, ErrDegenerateFeature) {
		t.Fatalf("expected ErrDegenerateFeature, got %v", err)
	}
}

func TestScalerCheck(t *testing.T) {
	scaler, err := FitScaler([][]float64{
		{20, 0, 0, 0, 18},
		{30, 1, 1, 1, 22},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := scaler.Check(FeatureSpecVersion); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := scaler.Check("features/v0:age,height,weight"); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}
	if _, err := scaler.Transform([]float64{1, 2}); err == nil {
		t.Fatal("expected error for short vector")
	}
}
