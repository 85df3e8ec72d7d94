package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"quotewire/internal/model"
	"quotewire/internal/queue"
)

// Queue is the part of the display queue the device API needs.
type Queue interface {
	Serve(ctx context.Context, deviceID string) (*model.QueueEntry, error)
	Reset(ctx context.Context) (int, error)
	Stats(ctx context.Context) (queue.Stats, error)
}

type Server struct {
	queue    Queue
	logger   *zap.Logger
	gatherer prometheus.Gatherer
	router   *mux.Router
	server   *http.Server
}

// NewServer wires the routes. A nil gatherer serves the default registry.
func NewServer(q Queue, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		queue:    q,
		logger:   logger,
		gatherer: gatherer,
		router:   mux.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(s.requestID)

	s.router.HandleFunc("/api/quote", s.handleQuote).Methods(http.MethodGet, http.MethodPost)
	s.router.HandleFunc("/api/queue/reset", s.handleReset).Methods(http.MethodPost)
	s.router.HandleFunc("/api/queue/stats", s.handleStats).Methods(http.MethodGet)

	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start launches the HTTP server
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	s.logger.Info("Device API listening", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

type quoteResponse struct {
	Success bool   `json:"success"`
	Quote   string `json:"quote,omitempty"`
	QuoteID string `json:"quote_id,omitempty"`
	Source  string `json:"source,omitempty"`
	Message string `json:"message,omitempty"`
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	deviceID := deviceIDFrom(r)
	logger := s.logger.With(zap.String("device_id", deviceID), zap.String("request_id", requestIDFrom(r)))

	entry, err := s.queue.Serve(r.Context(), deviceID)
	if errors.Is(err, queue.ErrEmpty) {
		logger.Info("No quotes to serve")
		writeJSON(w, http.StatusOK, quoteResponse{Success: false, Message: "No quotes available"})
		return
	}
	if err != nil {
		logger.Error("Serve failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, quoteResponse{Success: false, Message: "Internal error"})
		return
	}

	logger.Info("Quote served", zap.String("quote_id", entry.SourceID))
	writeJSON(w, http.StatusOK, quoteResponse{
		Success: true,
		Quote:   entry.Text,
		QuoteID: entry.SourceID,
		Source:  entry.Source,
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	n, err := s.queue.Reset(r.Context())
	if err != nil {
		s.logger.Error("Queue reset failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "message": "Internal error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "reset": n})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.queue.Stats(r.Context())
	if err != nil {
		s.logger.Error("Queue stats failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "message": "Internal error"})
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// deviceIDFrom reads device_id from a JSON body, then from the form or
// query string. Devices that send nothing are recorded as "unknown".
func deviceIDFrom(r *http.Request) string {
	if r.Method == http.MethodPost && isJSON(r.Header.Get("Content-Type")) {
		var body struct {
			DeviceID string `json:"device_id"`
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&body); err == nil && body.DeviceID != "" {
			return body.DeviceID
		}
	}
	if id := r.FormValue("device_id"); id != "" {
		return id
	}
	return "unknown"
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && mt == "application/json"
}

type ctxKey struct{}

// requestID tags every request with an id, reusing the caller's X-Request-ID.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

func requestIDFrom(r *http.Request) string {
	id, _ := r.Context().Value(ctxKey{}).(string)
	return id
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
