package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"bodytype/ml"
	"bodytype/monitoring"
	"bodytype/service"
)

// routes lists the paths used as metric labels. Anything else is counted as
// "other" to keep label cardinality bounded.
var routes = map[string]bool{
	"/predict":        true,
	"/api/predict":    true,
	"/api/schema":     true,
	"/api/health":     true,
	"/api/ws/predict": true,
	"/metrics":        true,
}

func routeLabel(path string) string {
	if routes[path] {
		return path
	}
	return "other"
}

type handlers struct {
	service  *service.Service
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// RegisterHandlers mounts the prediction API on mux. Handlers only read the
// service passed in; nothing is kept in package state.
func RegisterHandlers(mux *http.ServeMux, svc *service.Service, metrics *monitoring.Metrics, logger *zap.Logger, origins []string) {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &handlers{
		service: svc,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(origins),
		},
	}

	mux.HandleFunc("POST /predict", h.handlePredict)
	mux.HandleFunc("POST /api/predict", h.handlePredict)
	mux.HandleFunc("GET /api/schema", h.handleSchema)
	mux.HandleFunc("GET /api/health", h.handleHealth)
	mux.HandleFunc("GET /api/ws/predict", h.handlePredictStream)
	mux.Handle("GET /metrics", metrics.Handler())
}

func (h *handlers) handlePredict(w http.ResponseWriter, r *http.Request) {
	req, err := service.DecodeRequest(r.Body)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	prediction, err := h.service.Predict(r.Context(), req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, prediction)
}

func (h *handlers) handleSchema(w http.ResponseWriter, r *http.Request) {
	schema, err := h.service.Schema()
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, schema)
}

type healthResponse struct {
	Status   string    `json:"status"`
	RunID    string    `json:"run_id,omitempty"`
	LoadedAt time.Time `json:"loaded_at,omitempty"`
}

func (h *handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	current := h.service.Context()
	if current == nil {
		respondJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
		return
	}
	schema := current.Schema()
	respondJSON(w, http.StatusOK, healthResponse{Status: "ok", RunID: schema.RunID, LoadedAt: schema.LoadedAt})
}

// streamReply is one websocket answer. Status carries the HTTP status the
// same request would have received on /predict.
type streamReply struct {
	Status int `json:"status"`
	*service.Prediction
	Error string `json:"error,omitempty"`
}

// handlePredictStream answers each text message with one prediction. A bad
// message gets an error reply and the connection stays open.
func (h *handlers) handlePredictStream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	conn.SetReadLimit(64 << 10)
	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		reply := h.predictMessage(r, message)
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(reply); err != nil {
			h.logger.Warn("websocket write failed", zap.Error(err))
			return
		}
	}
}

func (h *handlers) predictMessage(r *http.Request, message []byte) streamReply {
	req, err := service.DecodeRequest(bytes.NewReader(message))
	if err == nil {
		var prediction service.Prediction
		prediction, err = h.service.Predict(r.Context(), req)
		if err == nil {
			return streamReply{Status: http.StatusOK, Prediction: &prediction}
		}
	}
	status, text := classify(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("prediction failed", zap.String("request_id", GetRequestID(r.Context())), zap.Error(err))
	}
	return streamReply{Status: status, Error: text}
}

// classify maps an error to a status code and the message the client sees.
func classify(err error) (int, string) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, "request body too large"
	case ml.IsValidation(err):
		return http.StatusBadRequest, err.Error()
	case service.IsUnavailable(err):
		return http.StatusServiceUnavailable, "model unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "request timeout"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func (h *handlers) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, text := classify(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		fields := []zap.Field{
			zap.String("request_id", GetRequestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		}
		if start := GetStartTime(r.Context()); !start.IsZero() {
			fields = append(fields, zap.Duration("elapsed", time.Since(start)))
		}
		h.logger.Error("request failed", fields...)
	}
	writeError(w, status, text)
}

func writeError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// originChecker allows same-host upgrades plus the configured CORS origins.
func originChecker(origins []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, allowed := range origins {
			if allowed == "*" || allowed == origin {
				return true
			}
		}
		u, err := url.Parse(origin)
		return err == nil && u.Host == r.Host
	}
}
