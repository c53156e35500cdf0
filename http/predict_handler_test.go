package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"bodytype/service"
)

const validBody = `{"age":30,"gender":"Male","height":175,"weight":70,"activity":"Sedentary","goal":"Weight Loss"}`

func TestHandlePredict(t *testing.T) {
	for _, path := range []string{"/predict", "/api/predict"} {
		handler := newTestHandler(t, true, nil)
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(validBody))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d: %s", path, w.Code, w.Body.String())
		}
		var payload service.Prediction
		if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
			t.Fatalf("invalid json: %v", err)
		}
		if payload.BMI != 22.86 {
			t.Errorf("unexpected bmi: %v", payload.BMI)
		}
		if payload.BodyType == "" || payload.Recommendation == "" {
			t.Errorf("incomplete prediction: %+v", payload)
		}
		if payload.Confidence <= 0 || payload.Confidence > 1 {
			t.Errorf("confidence out of range: %v", payload.Confidence)
		}
	}
}

func TestHandlePredictErrors(t *testing.T) {
	tests := []struct {
		name  string
		ready bool
		body  string
		code  int
		want  string
	}{
		{name: "broken json", ready: true, body: `{"age":`, code: http.StatusBadRequest, want: "malformed input"},
		{name: "string age", ready: true, body: `{"age":"thirty"}`, code: http.StatusBadRequest, want: "age must be a number"},
		{name: "missing fields", ready: true, body: `{"age":30}`, code: http.StatusBadRequest, want: "missing required fields"},
		{name: "unknown gender", ready: true, body: strings.Replace(validBody, `"Male"`, `"Robot"`, 1), code: http.StatusBadRequest, want: "unknown category"},
		{name: "negative weight", ready: true, body: strings.Replace(validBody, `"weight":70`, `"weight":-70`, 1), code: http.StatusBadRequest, want: "invalid range"},
		{name: "too large", ready: true, body: `{"gender":"` + strings.Repeat("x", 2<<20) + `"}`, code: http.StatusRequestEntityTooLarge, want: "too large"},
		{name: "no bundle", ready: false, body: validBody, code: http.StatusServiceUnavailable, want: "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := newTestHandler(t, tt.ready, nil)
			req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.code {
				t.Fatalf("expected %d, got %d: %s", tt.code, w.Code, w.Body.String())
			}
			var payload map[string]string
			if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
				t.Fatalf("invalid json: %v", err)
			}
			if !strings.Contains(payload["error"], tt.want) {
				t.Errorf("error %q does not mention %q", payload["error"], tt.want)
			}
		})
	}
}

func TestPredictRejectsGet(t *testing.T) {
	handler := newTestHandler(t, true, nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/predict", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}
