package controlplane

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/fentz26/dormindo/internal/broadcast"
	"github.com/fentz26/dormindo/internal/engine"
	"github.com/fentz26/dormindo/internal/models"
	"github.com/r3labs/sse/v2"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
)

// Version is reported by /health. It is set at build time via -ldflags.
var Version = "0.1.0-dev"

// Server provides the HTTP API for Dormindo.
type Server struct {
	service *Service
	events  *sse.Server
	addr    string
	origins []string
	server  *http.Server
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	OK      bool   `json:"ok"`
	DB      string `json:"db"`
	Version string `json:"version"`
	Time    string `json:"time"`
}

// NewServer creates a new HTTP server. events may be nil, which disables /events.
func NewServer(service *Service, events *sse.Server, addr string, allowedOrigins []string) *Server {
	return &Server{
		service: service,
		events:  events,
		addr:    addr,
		origins: allowedOrigins,
	}
}

// Handler builds the routed handler with CORS applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Timer endpoints
	mux.HandleFunc("/timer", s.handleTimer)
	mux.HandleFunc("/timer/", s.handleTimerAction)

	mux.HandleFunc("/media", s.handleMedia)
	mux.HandleFunc("/settings", s.handleSettings)
	mux.HandleFunc("/history", s.handleHistory)
	mux.HandleFunc("/events", s.handleEvents)

	// Health check
	mux.HandleFunc("/health", s.handleHealth)

	origins := s.origins
	if len(origins) == 0 {
		origins = []string{"http://localhost", "http://127.0.0.1"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(mux)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:        s.addr,
		Handler:     s.Handler(),
		ReadTimeout: 10 * time.Second,
		// No write timeout: /events holds the response open.
		IdleTimeout: 60 * time.Second,
	}

	log.Info().Str("addr", s.addr).Msg("Starting Dormindo daemon")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// handleTimer handles GET /timer
func (s *Server) handleTimer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	st, err := s.service.Status(r.Context())
	s.respondStatus(w, st, err)
}

type startRequest struct {
	Minutes int   `json:"minutes"`
	Seconds int64 `json:"seconds"`
}

type cancelRequest struct {
	StopMedia bool `json:"stop_media"`
}

type addRequest struct {
	Minutes int `json:"minutes"`
}

// handleTimerAction handles POST /timer/{action}
func (s *Server) handleTimerAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	ctx := r.Context()
	action := r.URL.Path[len("/timer/"):]

	switch action {
	case "start":
		var req startRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Minutes < 0 || req.Seconds < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("%w: duration must not be negative", ErrInvalidRequest))
			return
		}
		if req.Seconds > engine.MaxSeconds || int64(req.Minutes) > engine.MaxSeconds/60 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("%w: duration longer than %d seconds", ErrInvalidRequest, engine.MaxSeconds))
			return
		}
		seconds := req.Seconds
		if seconds == 0 {
			seconds = int64(req.Minutes) * 60
		}
		st, err := s.service.StartTimer(ctx, seconds)
		s.respondStatus(w, st, err)
	case "pause":
		st, err := s.service.Pause(ctx)
		s.respondStatus(w, st, err)
	case "resume":
		st, err := s.service.Resume(ctx)
		s.respondStatus(w, st, err)
	case "cancel":
		var req cancelRequest
		if !decodeBody(w, r, &req) {
			return
		}
		st, err := s.service.Cancel(ctx, req.StopMedia)
		s.respondStatus(w, st, err)
	case "add":
		var req addRequest
		if !decodeBody(w, r, &req) {
			return
		}
		st, err := s.service.AddMinutes(ctx, req.Minutes)
		s.respondStatus(w, st, err)
	case "refresh":
		st, err := s.service.Refresh(ctx)
		s.respondStatus(w, st, err)
	default:
		writeError(w, http.StatusNotFound, errors.New("not found"))
	}
}

func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	info, err := s.service.CurrentMedia(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	switch r.Method {
	case http.MethodGet:
		settings, err := s.service.GetSettings(ctx)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, settings)
	case http.MethodPut:
		var req models.Settings
		if !decodeBody(w, r, &req) {
			return
		}
		settings, err := s.service.UpdateSettings(ctx, req)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, settings)
	default:
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("%w: limit must be a non-negative integer", ErrInvalidRequest))
			return
		}
		limit = n
	}
	runs, err := s.service.History(r.Context(), limit)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// handleEvents serves the snapshot stream. The stream query defaults to the timer stream.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeError(w, http.StatusNotFound, errors.New("event stream disabled"))
		return
	}
	if r.URL.Query().Get("stream") == "" {
		q := r.URL.Query()
		q.Set("stream", broadcast.Stream)
		r.URL.RawQuery = q.Encode()
	}
	s.events.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}

	resp := HealthResponse{
		OK:      true,
		DB:      "ok",
		Version: Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	}
	status := http.StatusOK

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.service.Ping(ctx); err != nil {
		resp.OK = false
		resp.DB = err.Error()
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (s *Server) respondStatus(w http.ResponseWriter, st models.TimerStatus, err error) {
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// decodeBody decodes an optional JSON body. An empty body leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.Body == nil {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: invalid json", ErrInvalidRequest))
		return false
	}
	return true
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("controlplane: write response")
	}
}
