package ml

import (
	"encoding/json"
	"testing"
)

func TestDecisionTreeTrainPredict(t *testing.T) {
	features := [][]float64{
		{0.1, 0.2},
		{0.2, 0.1},
		{0.9, 0.8},
		{0.8, 0.9},
	}
	labels := []int{0, 0, 2, 2}

	model := NewDecisionTree(TreeParams{})
	if err := model.Train(features, labels); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	label, confidence, err := model.Predict([]float64{0.15, 0.15})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if label != 0 {
		t.Fatalf("expected label 0, got %d", label)
	}
	if confidence != 1 {
		t.Fatalf("expected confidence 1, got %v", confidence)
	}
	label, _, err = model.Predict([]float64{0.85, 0.85})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if label != 2 {
		t.Fatalf("expected label 2, got %d", label)
	}
	if model.NumClasses() != 3 {
		t.Fatalf("expected 3 classes, got %d", model.NumClasses())
	}
}

func TestDecisionTreeChildrenAreAbsolute(t *testing.T) {
	// Three bands on one feature force a split below the root.
	features := [][]float64{{1}, {2}, {3}, {4}, {5}, {6}}
	labels := []int{0, 0, 1, 1, 2, 2}

	model := NewDecisionTree(TreeParams{})
	if err := model.Train(features, labels); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := model.validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, x := range features {
		label, _, err := model.Predict(x)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if label != labels[i] {
			t.Fatalf("input %v: expected %d, got %d", x, labels[i], label)
		}
	}
	if model.Depth() != 2 {
		t.Fatalf("expected depth 2, got %d", model.Depth())
	}
}

func TestDecisionTreeMaxDepth(t *testing.T) {
	features := [][]float64{{1}, {2}, {3}, {4}, {5}, {6}}
	labels := []int{0, 1, 0, 1, 0, 1}

	model := NewDecisionTree(TreeParams{MaxDepth: 1})
	if err := model.Train(features, labels); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if model.Depth() > 1 {
		t.Fatalf("expected depth <= 1, got %d", model.Depth())
	}
}

func TestDecisionTreeErrors(t *testing.T) {
	model := NewDecisionTree(TreeParams{})
	if _, _, err := model.Predict([]float64{1}); err == nil {
		t.Fatal("expected error for untrained model")
	}
	if err := model.Train(nil, nil); err == nil {
		t.Fatal("expected error for empty training set")
	}
	if err := model.Train([][]float64{{1}, {2}}, []int{0}); err == nil {
		t.Fatal("expected error for size mismatch")
	}
}

func TestLoadModelDecisionTree(t *testing.T) {
	model := NewDecisionTree(TreeParams{})
	if err := model.Train([][]float64{{1}, {2}, {3}, {4}}, []int{0, 0, 1, 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	payload, err := json.Marshal(model)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	loaded, err := LoadModel(ModelDecisionTree, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	label, _, err := loaded.Predict([]float64{3.5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if label != 1 {
		t.Fatalf("expected label 1, got %d", label)
	}

	broken := `{"classes":2,"nodes":[{"feature_idx":0,"threshold":1,"left_child":0,"right_child":5,"is_leaf":false}]}`
	if _, err := LoadModel(ModelDecisionTree, []byte(broken)); err == nil {
		t.Fatal("expected error for invalid node links")
	}
	if _, err := LoadModel("svm", payload); err == nil {
		t.Fatal("expected error for unknown model type")
	}
}
