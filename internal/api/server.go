package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ajitpratap0/graphnet/internal/models"
	"github.com/ajitpratap0/graphnet/internal/pipeline"
	"github.com/ajitpratap0/graphnet/internal/store"
)

// maxBodyBytes limits request bodies. Documents above this should be split
// before submission.
const maxBodyBytes = 10 << 20 // 10 MB

// Server is an HTTP API server exposing ingestion and query operations.
type Server struct {
	pipeline  *pipeline.Pipeline
	store     store.GraphStore
	logger    *slog.Logger
	authToken string // empty = no auth required
}

// NewServer creates a new Server with the given dependencies.
func NewServer(p *pipeline.Pipeline, st store.GraphStore, logger *slog.Logger, authToken string) *Server {
	return &Server{
		pipeline:  p,
		store:     st,
		logger:    logger,
		authToken: authToken,
	}
}

// Handler returns an http.Handler with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health check — no auth required.
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	// Graph operations — wrapped with auth middleware.
	mux.HandleFunc("POST /v1/ingest", s.auth(s.handleIngest))
	mux.HandleFunc("POST /v1/query", s.auth(s.handleQuery))
	mux.HandleFunc("GET /v1/entities", s.auth(s.handleEntities))
	mux.HandleFunc("GET /v1/stats", s.auth(s.handleStats))
	mux.HandleFunc("GET /v1/export", s.auth(s.handleExport))
	mux.HandleFunc("DELETE /v1/graph", s.auth(s.handleClear))

	return mux
}

// --- middleware ---

// auth wraps a handler with Bearer token authentication when authToken is set.
func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.authToken == "" {
			next(w, r)
			return
		}
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
			s.writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

// --- handlers ---

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "degraded",
			"store":  err.Error(),
		})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ingestRequest is the body accepted by POST /v1/ingest.
type ingestRequest struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	Text       string `json:"text"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(req.Text) == "" {
		s.writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	if req.DocumentID == "" {
		req.DocumentID = uuid.NewString()
	}

	report, err := s.pipeline.IngestDocument(r.Context(), req.DocumentID, req.Filename, req.Text)
	if err != nil {
		s.logger.Error("ingestion failed", "document", req.DocumentID, "error", err)
		// The report still describes what succeeded before the failure.
		s.writeJSON(w, http.StatusInternalServerError, report)
		return
	}

	s.writeJSON(w, http.StatusOK, report)
}

// queryRequest is the body accepted by POST /v1/query.
type queryRequest struct {
	Question string `json:"question"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(req.Question) == "" {
		s.writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	result, err := s.pipeline.AnswerQuestion(r.Context(), req.Question)
	if err != nil {
		s.logger.Error("query failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to answer question")
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

// entitiesResponse is returned by GET /v1/entities.
type entitiesResponse struct {
	Entities []models.CanonicalEntity `json:"entities"`
}

// handleEntities looks up entities by ?type= or ?name= (substring match).
func (s *Server) handleEntities(w http.ResponseWriter, r *http.Request) {
	typeParam := r.URL.Query().Get("type")
	nameParam := r.URL.Query().Get("name")

	var entities []models.CanonicalEntity
	var err error
	switch {
	case typeParam != "":
		entities, err = s.store.EntitiesByType(r.Context(), models.NormalizeEntityType(typeParam))
	case nameParam != "":
		entities, err = s.store.EntitiesByName(r.Context(), nameParam)
	default:
		s.writeError(w, http.StatusBadRequest, "type or name query parameter is required")
		return
	}
	if err != nil {
		s.logger.Error("entity lookup failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to look up entities")
		return
	}

	s.writeJSON(w, http.StatusOK, entitiesResponse{Entities: entities})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.pipeline.Statistics(r.Context())
	if err != nil {
		s.logger.Error("failed to get stats", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	export, err := s.pipeline.Export(r.Context())
	if err != nil {
		s.logger.Error("failed to export graph", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to export graph")
		return
	}

	s.writeJSON(w, http.StatusOK, export)
}

// handleClear wipes the graph. Requires ?confirm=true.
func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("confirm") != "true" {
		s.writeError(w, http.StatusBadRequest, "pass confirm=true to clear the graph")
		return
	}

	if err := s.pipeline.Clear(r.Context()); err != nil {
		s.logger.Error("failed to clear graph", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to clear graph")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]bool{"cleared": true})
}

// --- helpers ---

// writeJSON encodes v as JSON and writes it to w with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(v); encErr != nil {
		s.logger.Error("failed to encode response", "error", encErr)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// Shutdown gracefully shuts down an http.Server with the given timeout.
// This is a convenience helper used by the serve command.
func Shutdown(srv *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
