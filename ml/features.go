package ml

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/unicode/norm"
)

const (
	ColumnAge      = "age"
	ColumnGender   = "gender"
	ColumnActivity = "activity_level"
	ColumnGoal     = "goal"
	ColumnBMI      = "bmi"
)

const maxAge = 130

// RawRecord is one subject as read from the dataset or a prediction request.
// Height is in centimetres and weight in kilograms. BodyType is only set for
// labelled training rows.
type RawRecord struct {
	Age      float64
	Gender   string
	Height   float64
	Weight   float64
	Activity string
	Goal     string
	BodyType string
}

// DerivedFeatureVector is laid out in FeatureNames order.
type DerivedFeatureVector []float64

// Encoder maps a categorical column value to its fitted integer code.
type Encoder interface {
	Encode(column, value string) (int, error)
}

// BMI replaces raw height and weight; neither is ever emitted as a feature.
var featureNames = []string{ColumnAge, ColumnGender, ColumnActivity, ColumnGoal, ColumnBMI}

var categoricalColumns = []string{ColumnGender, ColumnActivity, ColumnGoal}

// FeatureSpecVersion tags every artifact fit against this column layout.
var FeatureSpecVersion = "features/v1:" + strings.Join(featureNames, ",")

func FeatureNames() []string {
	return append([]string(nil), featureNames...)
}

func CategoricalColumns() []string {
	return append([]string(nil), categoricalColumns...)
}

// CanonicalCategory is applied to every category string before it is fit,
// encoded or compared.
func CanonicalCategory(value string) string {
	return strings.TrimSpace(norm.NFC.String(value))
}

func BMI(heightCm, weightKg float64) (float64, error) {
	if err := checkFinite("height", heightCm); err != nil {
		return 0, err
	}
	if err := checkFinite("weight", weightKg); err != nil {
		return 0, err
	}
	if heightCm <= 0 {
		return 0, fmt.Errorf("%w: height must be positive, got %v", ErrInvalidRange, heightCm)
	}
	if weightKg <= 0 {
		return 0, fmt.Errorf("%w: weight must be positive, got %v", ErrInvalidRange, weightKg)
	}
	meters := heightCm / 100
	return weightKg / (meters * meters), nil
}

func ValidateRecord(record RawRecord) error {
	if err := checkFinite("age", record.Age); err != nil {
		return err
	}
	if record.Age <= 0 || record.Age > maxAge {
		return fmt.Errorf("%w: age must be in (0, %d], got %v", ErrInvalidRange, maxAge, record.Age)
	}
	if _, err := BMI(record.Height, record.Weight); err != nil {
		return err
	}
	for _, column := range categoricalColumns {
		value, _ := CategoryValue(record, column)
		if CanonicalCategory(value) == "" {
			return fmt.Errorf("%w: %s is required", ErrMalformedInput, column)
		}
	}
	return nil
}

// Derive is the only way a RawRecord becomes model input, at training and at
// serving time alike.
func Derive(record RawRecord, encoder Encoder) (DerivedFeatureVector, error) {
	if encoder == nil {
		return nil, fmt.Errorf("%w: no category encoder", ErrMalformedInput)
	}
	if err := ValidateRecord(record); err != nil {
		return nil, err
	}
	bmi, err := BMI(record.Height, record.Weight)
	if err != nil {
		return nil, err
	}
	gender, err := encoder.Encode(ColumnGender, record.Gender)
	if err != nil {
		return nil, err
	}
	activity, err := encoder.Encode(ColumnActivity, record.Activity)
	if err != nil {
		return nil, err
	}
	goal, err := encoder.Encode(ColumnGoal, record.Goal)
	if err != nil {
		return nil, err
	}
	return DerivedFeatureVector{
		record.Age,
		float64(gender),
		float64(activity),
		float64(goal),
		bmi,
	}, nil
}

// CategoryValue returns the raw value of a categorical column.
func CategoryValue(record RawRecord, column string) (string, bool) {
	switch column {
	case ColumnGender:
		return record.Gender, true
	case ColumnActivity:
		return record.Activity, true
	case ColumnGoal:
		return record.Goal, true
	default:
		return "", false
	}
}

func checkFinite(field string, value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("%w: %s is not a finite number", ErrMalformedInput, field)
	}
	return nil
}
