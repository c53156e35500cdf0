package ml

import (
	"errors"
	"fmt"
)

// LabelSource records where training labels came from. It is part of the
// artifact tag because it changes what a returned label means.
type LabelSource string

const (
	// LabelsFromDataset uses the dataset's Body Type column.
	LabelsFromDataset LabelSource = "dataset"
	// LabelsFromBMI derives labels from BMI thresholds.
	LabelsFromBMI LabelSource = "bmi"
)

const (
	LabelUnderweight = "Underweight"
	LabelFit         = "Fit"
	LabelOverweight  = "Overweight"
)

func ParseLabelSource(value string) (LabelSource, error) {
	switch LabelSource(value) {
	case LabelsFromDataset, LabelsFromBMI:
		return LabelSource(value), nil
	case "":
		return "", errors.New("label source must be set explicitly (dataset or bmi)")
	default:
		return "", fmt.Errorf("unknown label source %q (want dataset or bmi)", value)
	}
}

func BMILabel(bmi float64) string {
	switch {
	case bmi < 18.5:
		return LabelUnderweight
	case bmi < 25:
		return LabelFit
	default:
		return LabelOverweight
	}
}

func GenerateLabels(records []RawRecord, source LabelSource) ([]string, error) {
	if len(records) == 0 {
		return nil, errors.New("records is empty")
	}
	labels := make([]string, len(records))
	for i, record := range records {
		switch source {
		case LabelsFromDataset:
			label := CanonicalCategory(record.BodyType)
			if label == "" {
				return nil, fmt.Errorf("%w: record %d has no body type", ErrMalformedInput, i)
			}
			labels[i] = label
		case LabelsFromBMI:
			bmi, err := BMI(record.Height, record.Weight)
			if err != nil {
				return nil, fmt.Errorf("record %d: %w", i, err)
			}
			labels[i] = BMILabel(bmi)
		default:
			return nil, fmt.Errorf("unknown label source %q", source)
		}
	}
	return labels, nil
}
