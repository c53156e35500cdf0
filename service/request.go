package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strconv"
	"strings"

	"bodytype/ml"
)

// Request is the prediction payload. Pointer fields distinguish a missing
// field from a zero value.
type Request struct {
	Age      *float64 `json:"age"`
	Gender   *string  `json:"gender"`
	Height   *float64 `json:"height"`
	Weight   *float64 `json:"weight"`
	Activity *string  `json:"activity"`
	Goal     *string  `json:"goal"`
}

// DecodeRequest reads one JSON object. Wrong JSON types and trailing data are
// reported as ml.ErrMalformedInput.
func DecodeRequest(r io.Reader) (Request, error) {
	var req Request
	decoder := json.NewDecoder(r)
	if err := decoder.Decode(&req); err != nil {
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.As(err, &typeErr):
			if typeErr.Field == "" {
				return Request{}, fmt.Errorf("%w: request must be a JSON object", ml.ErrMalformedInput)
			}
			return Request{}, fmt.Errorf("%w: %s must be a %s, got %s", ml.ErrMalformedInput, typeErr.Field, jsonKind(typeErr.Type), typeErr.Value)
		case errors.Is(err, io.EOF):
			return Request{}, fmt.Errorf("%w: empty request body", ml.ErrMalformedInput)
		default:
			return Request{}, fmt.Errorf("%w: invalid JSON: %w", ml.ErrMalformedInput, err)
		}
	}
	switch _, err := decoder.Token(); {
	case err == nil:
		return Request{}, fmt.Errorf("%w: unexpected data after request object", ml.ErrMalformedInput)
	case !errors.Is(err, io.EOF):
		return Request{}, fmt.Errorf("%w: unexpected data after request object: %w", ml.ErrMalformedInput, err)
	}
	return req, nil
}

func jsonKind(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Float32, reflect.Float64, reflect.Int, reflect.Int64:
		return "number"
	case reflect.String:
		return "string"
	default:
		return t.String()
	}
}

// Record checks that every field is present and converts the request into
// the record the feature derivation consumes.
func (r Request) Record() (ml.RawRecord, error) {
	var missing []string
	if r.Age == nil {
		missing = append(missing, "age")
	}
	if r.Gender == nil {
		missing = append(missing, "gender")
	}
	if r.Height == nil {
		missing = append(missing, "height")
	}
	if r.Weight == nil {
		missing = append(missing, "weight")
	}
	if r.Activity == nil {
		missing = append(missing, "activity")
	}
	if r.Goal == nil {
		missing = append(missing, "goal")
	}
	if len(missing) > 0 {
		return ml.RawRecord{}, fmt.Errorf("%w: missing required fields: %s", ml.ErrMalformedInput, strings.Join(missing, ", "))
	}
	return ml.RawRecord{
		Age:      *r.Age,
		Gender:   *r.Gender,
		Height:   *r.Height,
		Weight:   *r.Weight,
		Activity: *r.Activity,
		Goal:     *r.Goal,
	}, nil
}

// cacheKey identifies a record under one bundle. Categories are canonical so
// equivalent spellings share an entry.
func cacheKey(runID string, record ml.RawRecord) string {
	parts := []string{
		runID,
		strconv.FormatFloat(record.Age, 'g', -1, 64),
		ml.CanonicalCategory(record.Gender),
		strconv.FormatFloat(record.Height, 'g', -1, 64),
		strconv.FormatFloat(record.Weight, 'g', -1, 64),
		ml.CanonicalCategory(record.Activity),
		ml.CanonicalCategory(record.Goal),
	}
	return strings.Join(parts, "\x1f")
}
