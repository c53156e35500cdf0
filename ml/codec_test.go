package ml

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func TestFitMappingIsLexicographic(t *testing.T) {
	mapping, err := FitMapping(ColumnGender, []string{"Male", " Female", "Male", "Female "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := []string{"Female", "Male"}; !reflect.DeepEqual(mapping.Values, want) {
		t.Fatalf("expected %v, got %v", want, mapping.Values)
	}

	reordered, err := FitMapping(ColumnGender, []string{"Female", "Male"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(mapping.Values, reordered.Values) {
		t.Fatalf("row order changed the mapping: %v vs %v", mapping.Values, reordered.Values)
	}
}

func TestFitMappingRejectsEmpty(t *testing.T) {
	if _, err := FitMapping(ColumnGoal, nil); err == nil {
		t.Fatal("expected error for empty column")
	}
	if _, err := FitMapping(ColumnGoal, []string{"Weight Loss", ""}); !errors.Is(err, ErrMalformedInput) {
		t.Fatalf("expected ErrMalformedInput, got %v", err)
	}
}

func TestCategoryMappingNormalisation(t *testing.T) {
	// "Café" precomposed and decomposed must share a code.
	mapping, err := FitMapping(ColumnActivity, []string{"Caf\u00e9"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	code, err := mapping.Encode("Cafe\u0301")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if code != 0 {
		t.Fatalf("expected code 0, got %d", code)
	}
}

func TestCodecRoundTrip(t *testing.T) {
	codec := testCodec(t)
	for _, column := range codec.Columns() {
		for code, value := range codec.Values(column) {
			got, err := codec.Encode(column, value)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != code {
				t.Fatalf("%s/%s: expected code %d, got %d", column, value, code, got)
			}
			decoded, err := codec.Decode(column, got)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if decoded != value {
				t.Fatalf("expected %q, got %q", value, decoded)
			}
		}
	}
}

func TestCodecUnknownCategory(t *testing.T) {
	codec := testCodec(t)
	if _, err := codec.Encode(ColumnGender, "Unknown"); !errors.Is(err, ErrUnknownCategory) {
		t.Fatalf("expected ErrUnknownCategory, got %v", err)
	}
	if _, err := codec.Encode("height", "180"); !errors.Is(err, ErrUnknownCategory) {
		t.Fatalf("expected ErrUnknownCategory for non-categorical column, got %v", err)
	}
	if _, err := codec.Decode(ColumnGender, 99); !errors.Is(err, ErrUnknownCategory) {
		t.Fatalf("expected ErrUnknownCategory, got %v", err)
	}
}

func TestCodecJSONRestoresIndex(t *testing.T) {
	codec := testCodec(t)
	data, err := json.Marshal(codec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var loaded Codec
	if err := json.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want, _ := codec.Encode(ColumnGoal, "Weight Loss")
	got, err := loaded.Encode(ColumnGoal, "Weight Loss")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestCategoryMappingRejectsTamperedJSON(t *testing.T) {
	var mapping CategoryMapping
	err := json.Unmarshal([]byte(`{"column":"gender","values":["Male","Male"]}`), &mapping)
	if err == nil {
		t.Fatal("expected error for duplicate values")
	}
}

func TestLabelMapping(t *testing.T) {
	labels, err := FitLabels([]string{"Overweight", "Fit", "Underweight", "Fit"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if labels.Len() != 3 {
		t.Fatalf("expected 3 labels, got %d", labels.Len())
	}
	for class, label := range labels.Labels() {
		got, err := labels.Encode(label)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != class {
			t.Fatalf("expected class %d, got %d", class, got)
		}
	}
	if _, err := labels.Decode(3); !errors.Is(err, ErrUnknownCategory) {
		t.Fatalf("expected ErrUnknownCategory, got %v", err)
	}

	data, err := json.Marshal(labels)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var loaded LabelMapping
	if err := json.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(loaded.Labels(), labels.Labels()) {
		t.Fatalf("expected %v, got %v", labels.Labels(), loaded.Labels())
	}

	var wrong LabelMapping
	if err := json.Unmarshal([]byte(`{"column":"gender","values":["Male"]}`), &wrong); err == nil {
		t.Fatal("expected error for a non-label mapping")
	}
}
