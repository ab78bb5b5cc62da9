package controlplane

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fentz26/bioreactor/internal/logging"
	"github.com/fentz26/bioreactor/internal/models"
	"github.com/fentz26/bioreactor/internal/reactor"
)

// Server provides the HTTP API for the bioreactor.
type Server struct {
	service *Service
	metrics http.Handler
	addr    string
	log     *slog.Logger
	server  *http.Server
}

// NewServer creates a new HTTP server. metricsHandler may be nil.
func NewServer(service *Service, metricsHandler http.Handler, addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	s := &Server{
		service: service,
		metrics: metricsHandler,
		addr:    addr,
		log:     logger,
	}
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Minute, // plans block for the sum of their waits
	}
	return s
}

// Handler builds the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Process endpoints
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/read_multi_real", s.handleRead)
	mux.HandleFunc("/write_multi_real", s.handleWrite)
	mux.HandleFunc("/control_loops", s.handleControlLoops)
	mux.HandleFunc("/trend", s.handleTrend)

	// Plan endpoints
	mux.HandleFunc("/llm/plan", s.handleGeneratePlan)
	mux.HandleFunc("/execute_plan", s.handleExecutePlan)

	// Journal endpoints
	mux.HandleFunc("/executions", s.handleExecutions)
	mux.HandleFunc("/executions/", s.handleExecutionByID)
	mux.HandleFunc("/audit", s.handleAudit)

	mux.HandleFunc("/health", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}

	return withCORS(mux)
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.log.Info("starting bioreactor API", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// withCORS allows any origin, method and header, and answers preflights.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "*")
		h.Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// errorResponse is the error body shape: {"detail": ...}.
type errorResponse struct {
	Detail interface{} `json:"detail"`
}

func writeDetail(w http.ResponseWriter, status int, detail interface{}) {
	writeJSON(w, status, errorResponse{Detail: detail})
}

func decodeBody(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return ErrInvalidRequest
	}
	return nil
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		writeDetail(w, http.StatusMethodNotAllowed, "Method Not Allowed")
		return false
	}
	return true
}

func queryLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return 0
	}
	return n
}

// --- Process Handlers ---

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, s.service.Status())
}

type readRequest struct {
	Parameters []string `json:"parameters"`
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req readRequest
	if err := decodeBody(r, &req); err != nil || req.Parameters == nil {
		writeDetail(w, http.StatusBadRequest, "invalid request: parameters list required")
		return
	}

	readings, err := s.service.ReadParameters(req.Parameters)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, reactor.ErrUnknownParameter) {
			status = http.StatusBadRequest
		}
		writeDetail(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, readings)
}

type writeRequest struct {
	Values map[string]float64 `json:"values"`
}

func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req writeRequest
	if err := decodeBody(r, &req); err != nil || req.Values == nil {
		writeDetail(w, http.StatusBadRequest, "invalid request: values map required")
		return
	}
	writeJSON(w, http.StatusOK, s.service.WriteParameters(req.Values))
}

func (s *Server) handleControlLoops(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, s.service.ControlLoops())
}

func (s *Server) handleTrend(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	name := r.URL.Query().Get("parameter")
	if name == "" {
		writeDetail(w, http.StatusBadRequest, "parameter query required")
		return
	}
	trend, err := s.service.Trend(name)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, reactor.ErrUnknownParameter) {
			status = http.StatusBadRequest
		}
		writeDetail(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, trend)
}

// --- Plan Handlers ---

type generateRequest struct {
	Prompt string `json:"prompt"`
}

func (s *Server) handleGeneratePlan(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req generateRequest
	if err := decodeBody(r, &req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request: prompt required")
		return
	}
	writeJSON(w, http.StatusOK, s.service.GeneratePlan(req.Prompt))
}

// ExecuteResponse is the body of a completed plan execution.
type ExecuteResponse struct {
	Message     string            `json:"message"`
	Log         []models.LogEntry `json:"log"`
	ExecutionID string            `json:"execution_id"`
}

// ExecuteFailure is the body of an aborted plan execution.
type ExecuteFailure struct {
	Detail      FailureDetail `json:"detail"`
	ExecutionID string        `json:"execution_id"`
}

// FailureDetail carries the partial step log of an aborted plan.
type FailureDetail struct {
	Log []models.LogEntry `json:"log"`
}

func (s *Server) handleExecutePlan(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var spec models.PlanSpec
	if err := decodeBody(r, &spec); err != nil || spec.Steps == nil {
		writeDetail(w, http.StatusBadRequest, "invalid request: steps list required")
		return
	}

	exec := s.service.ExecutePlan(spec)
	if exec.Status != models.ExecutionStatusCompleted {
		writeJSON(w, http.StatusInternalServerError, ExecuteFailure{
			Detail:      FailureDetail{Log: exec.Log},
			ExecutionID: exec.ID,
		})
		return
	}
	writeJSON(w, http.StatusOK, ExecuteResponse{
		Message:     "Plan executed successfully",
		Log:         exec.Log,
		ExecutionID: exec.ID,
	})
}

// --- Journal Handlers ---

func (s *Server) handleExecutions(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	execs, err := s.service.ListExecutions(queryLimit(r))
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	if execs == nil {
		execs = []models.Execution{}
	}
	writeJSON(w, http.StatusOK, execs)
}

// handleExecutionByID handles GET /executions/{id}
func (s *Server) handleExecutionByID(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/executions/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeDetail(w, http.StatusNotFound, "Not Found")
		return
	}

	exec, err := s.service.GetExecution(id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrNotFound) {
			status = http.StatusNotFound
		}
		writeDetail(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	entries, err := s.service.ListAudit(queryLimit(r))
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []models.PDREntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// --- Health ---

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	OK      bool   `json:"ok"`
	DB      string `json:"db"`
	Version string `json:"version"`
	Time    string `json:"time"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{
		OK:      true,
		DB:      "ok",
		Version: Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	}
	status := http.StatusOK
	if err := s.service.Health(ctx); err != nil {
		resp.OK = false
		resp.DB = err.Error()
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
