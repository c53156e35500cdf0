package http

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestPredictStream(t *testing.T) {
	server := httptest.NewServer(newTestHandler(t, true, nil))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/ws/predict"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	tests := []struct {
		message string
		status  int
	}{
		{message: validBody, status: 200},
		{message: `{"age":30}`, status: 400},
		{message: validBody, status: 200},
	}
	for i, tt := range tests {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(tt.message)); err != nil {
			t.Fatalf("message %d: write: %v", i, err)
		}
		var reply struct {
			Status   int     `json:"status"`
			BodyType string  `json:"body_type"`
			BMI      float64 `json:"bmi"`
			Error    string  `json:"error"`
		}
		if err := conn.ReadJSON(&reply); err != nil {
			t.Fatalf("message %d: read: %v", i, err)
		}
		if reply.Status != tt.status {
			t.Fatalf("message %d: status %d, want %d (%s)", i, reply.Status, tt.status, reply.Error)
		}
		if tt.status == 200 && (reply.BodyType == "" || reply.BMI != 22.86) {
			t.Errorf("message %d: incomplete reply %+v", i, reply)
		}
		if tt.status != 200 && reply.Error == "" {
			t.Errorf("message %d: missing error text", i)
		}
	}
}
