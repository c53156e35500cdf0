package ml

import (
	"errors"
	"testing"
)

func TestBMILabel(t *testing.T) {
	tests := []struct {
		bmi  float64
		want string
	}{
		{bmi: 17.0, want: LabelUnderweight},
		{bmi: 18.5, want: LabelFit},
		{bmi: 24.99, want: LabelFit},
		{bmi: 25.0, want: LabelOverweight},
		{bmi: 32.0, want: LabelOverweight},
	}
	for _, tt := range tests {
		if got := BMILabel(tt.bmi); got != tt.want {
			t.Fatalf("bmi %v: expected %s, got %s", tt.bmi, tt.want, got)
		}
	}
}

func TestGenerateLabels(t *testing.T) {
	records := []RawRecord{
		{Height: 180, Weight: 55, BodyType: " Lean "},
		{Height: 170, Weight: 95, BodyType: "Heavy"},
	}

	labels, err := GenerateLabels(records, LabelsFromDataset)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if labels[0] != "Lean" || labels[1] != "Heavy" {
		t.Fatalf("unexpected dataset labels %v", labels)
	}

	labels, err = GenerateLabels(records, LabelsFromBMI)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if labels[0] != LabelUnderweight || labels[1] != LabelOverweight {
		t.Fatalf("unexpected bmi labels %v", labels)
	}

	records[1].BodyType = ""
	if _, err := GenerateLabels(records, LabelsFromDataset); !errors.Is(err, ErrMalformedInput) {
		t.Fatalf("expected ErrMalformedInput, got %v", err)
	}
}

func TestParseLabelSource(t *testing.T) {
	for _, value := range []string{"dataset", "bmi"} {
		if _, err := ParseLabelSource(value); err != nil {
			t.Fatalf("%s: unexpected error: %v", value, err)
		}
	}
	for _, value := range []string{"", "auto"} {
		if _, err := ParseLabelSource(value); err == nil {
			t.Fatalf("%q: expected error", value)
		}
	}
}
