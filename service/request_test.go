package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bodytype/ml"
)

func TestDecodeRequest(t *testing.T) {
	req, err := DecodeRequest(strings.NewReader(`{"age":30,"gender":"Male","height":175,"weight":70,"activity":"Sedentary","goal":"Weight Loss"}`))
	require.NoError(t, err)
	record, err := req.Record()
	require.NoError(t, err)
	assert.Equal(t, ml.RawRecord{Age: 30, Gender: "Male", Height: 175, Weight: 70, Activity: "Sedentary", Goal: "Weight Loss"}, record)
}

func TestDecodeRequestMalformed(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "empty body", body: ``, want: "empty request body"},
		{name: "string age", body: `{"age":"30"}`, want: "age must be a number"},
		{name: "numeric gender", body: `{"gender":1}`, want: "gender must be a string"},
		{name: "array", body: `[1,2]`, want: "JSON object"},
		{name: "broken json", body: `{"age":`, want: "invalid JSON"},
		{name: "trailing data", body: `{"age":30} {"age":31}`, want: "unexpected data"},
		{name: "trailing brace", body: `{"age":30}}`, want: "unexpected data"},
		{name: "trailing bracket", body: `{"age":30}]`, want: "unexpected data"},
		{name: "trailing number", body: `{"age":30} 7`, want: "unexpected data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeRequest(strings.NewReader(tt.body))
			require.ErrorIs(t, err, ml.ErrMalformedInput)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRequestRecordMissingFields(t *testing.T) {
	req, err := DecodeRequest(strings.NewReader(`{"age":30,"gender":"Male"}`))
	require.NoError(t, err)
	_, err = req.Record()
	require.ErrorIs(t, err, ml.ErrMalformedInput)
	assert.Contains(t, err.Error(), "height, weight, activity, goal")
}

func TestCacheKeyCanonical(t *testing.T) {
	a := ml.RawRecord{Age: 30, Gender: "Male", Height: 175, Weight: 70, Activity: "Sedentary", Goal: "Weight Loss"}
	b := a
	b.Gender = " Male "
	assert.Equal(t, cacheKey("run", a), cacheKey("run", b))
	assert.NotEqual(t, cacheKey("run", a), cacheKey("other", a))
}

func TestRecommendation(t *testing.T) {
	assert.Contains(t, Recommendation(17), "gaining")
	assert.Contains(t, Recommendation(22.86), "great work")
	assert.Contains(t, Recommendation(27), "lose weight")
	assert.Contains(t, Recommendation(31), "healthy lifestyle")
}
