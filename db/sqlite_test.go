package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"bodytype/ml"
)

func TestRunStore(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	runs := []TrainingLog{
		{RunID: "run-a", ModelName: ml.ModelRandomForest, Params: ml.Params{NEstimators: 50, MinSamplesSplit: 2}, CVAccuracy: 0.91, Accuracy: 0.9, DataPoints: 100, LabelSource: ml.LabelsFromBMI, FeatureVersion: ml.FeatureSpecVersion, TrainedAt: base},
		{RunID: "run-b", ModelName: ml.ModelDecisionTree, Params: ml.Params{MaxDepth: 10, MinSamplesSplit: 5}, CVAccuracy: 0.88, Accuracy: 0.87, DataPoints: 100, LabelSource: ml.LabelsFromDataset, FeatureVersion: ml.FeatureSpecVersion, TrainedAt: base.Add(time.Hour)},
	}
	for _, run := range runs {
		if err := store.SaveRun(ctx, run); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	logs, err := store.LoadTrainingLog(ctx, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(logs))
	}
	if logs[0].RunID != "run-b" {
		t.Fatalf("expected newest run first, got %s", logs[0].RunID)
	}
	if logs[0].Params != runs[1].Params || logs[0].LabelSource != ml.LabelsFromDataset {
		t.Fatalf("unexpected run %+v", logs[0])
	}

	limited, err := store.LoadTrainingLog(ctx, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected 1 run, got %d", len(limited))
	}

	if err := store.SaveRun(ctx, runs[0]); err == nil {
		t.Fatal("expected error for duplicate run id")
	}
}

func TestRunStoreNotInitialized(t *testing.T) {
	var store *RunStore
	if err := store.SaveRun(context.Background(), TrainingLog{RunID: "x"}); err == nil {
		t.Fatal("expected error")
	}
}
