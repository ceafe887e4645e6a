package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/resilitics/resilitics/internal/config"
	"github.com/resilitics/resilitics/internal/engine"
	"github.com/resilitics/resilitics/internal/store"
)

// maxUploadBytes caps multipart analyze uploads.
const maxUploadBytes = 64 << 20

// Handler serves the REST endpoints.
type Handler struct {
	cfg    *config.Config
	engine *engine.Engine
	store  store.Store
	logger *zap.Logger
}

// NewHandler creates a REST handler. The store may be nil; history endpoints
// then answer 503.
func NewHandler(cfg *config.Config, eng *engine.Engine, st store.Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{cfg: cfg, engine: eng, store: st, logger: logger}
}

// SetupRoutes configures the API routes.
func SetupRoutes(router *mux.Router, h *Handler) {
	router.HandleFunc("/analyze", h.Analyze).Methods("POST")
	router.HandleFunc("/runs", h.ListRuns).Methods("GET")
	router.HandleFunc("/runs/{id}", h.GetRun).Methods("GET")
	router.HandleFunc("/runs/{id}", h.DeleteRun).Methods("DELETE")
	router.HandleFunc("/runs/{id}/results", h.GetRunResults).Methods("GET")
}

// analyzeRequest is the JSON body of POST /analyze. Paths must be readable by
// the server process; use a multipart upload otherwise.
type analyzeRequest struct {
	ResultsPath  string `json:"results_path"`
	EventsPath   string `json:"events_path"`
	BaselinePath string `json:"baseline_path,omitempty"`
	Strategy     string `json:"strategy,omitempty"`
}

// Analyze handles POST /analyze. The body is either JSON naming server-side
// CSV paths or a multipart form with "results" and "events" file fields plus
// optional "baseline" and "strategy".
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	req, cleanup, err := h.decodeAnalyzeRequest(r)
	if err != nil {
		h.logger.Warn("rejecting analyze request", zap.Error(err))
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if cleanup != nil {
		defer cleanup()
	}
	if req.ResultsPath == "" || req.EventsPath == "" {
		respondError(w, http.StatusBadRequest, "results and events inputs are required")
		return
	}

	analysis, err := h.engine.Analyze(r.Context(), req)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	// The persisted record carries the full per-event assessments, so prefer
	// it as the response body when the store has it.
	if h.store != nil {
		if rec, err := h.store.GetRun(r.Context(), analysis.RunID); err == nil {
			respondJSON(w, http.StatusOK, rec)
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":      analysis.RunID,
		"strategy":    analysis.Strategy,
		"event_count": len(analysis.Results),
		"duration_ms": analysis.Duration.Milliseconds(),
	})
}

func (h *Handler) decodeAnalyzeRequest(r *http.Request) (engine.Request, func(), error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		return h.saveUploads(r)
	}
	var body analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return engine.Request{}, nil, fmt.Errorf("invalid request body: %w", err)
	}
	return engine.Request{
		ResultsPath:  body.ResultsPath,
		EventsPath:   body.EventsPath,
		BaselinePath: body.BaselinePath,
		Strategy:     body.Strategy,
	}, nil, nil
}

// saveUploads writes the multipart file fields into a temp directory that the
// returned cleanup removes once the analysis is done with them.
func (h *Handler) saveUploads(r *http.Request) (engine.Request, func(), error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return engine.Request{}, nil, fmt.Errorf("parsing multipart form: %w", err)
	}
	dir, err := os.MkdirTemp("", "resilitics-upload-")
	if err != nil {
		return engine.Request{}, nil, fmt.Errorf("creating upload dir: %w", err)
	}
	cleanup := func() { os.RemoveAll(dir) }

	req := engine.Request{Strategy: r.FormValue("strategy")}
	if req.ResultsPath, err = saveUpload(r, "results", dir); err != nil {
		cleanup()
		return engine.Request{}, nil, err
	}
	if req.EventsPath, err = saveUpload(r, "events", dir); err != nil {
		cleanup()
		return engine.Request{}, nil, err
	}
	baselinePath, err := saveUpload(r, "baseline", dir)
	switch {
	case err == nil:
		req.BaselinePath = baselinePath
	case errors.Is(err, http.ErrMissingFile):
		// The baseline upload is optional.
	default:
		cleanup()
		return engine.Request{}, nil, err
	}
	return req, cleanup, nil
}

func saveUpload(r *http.Request, field, dir string) (string, error) {
	file, _, err := r.FormFile(field)
	if err != nil {
		return "", fmt.Errorf("upload field %q: %w", field, err)
	}
	defer file.Close()

	path := filepath.Join(dir, field+".csv")
	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("saving upload %q: %w", field, err)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, file); err != nil {
		return "", fmt.Errorf("saving upload %q: %w", field, err)
	}
	return path, nil
}

// ListRuns handles GET /runs with optional limit and offset query parameters.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		respondError(w, http.StatusServiceUnavailable, "run history is not enabled")
		return
	}
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	runs, err := h.store.ListRuns(r.Context(), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []*store.RunRecord{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// GetRun handles GET /runs/{id}, returning the run with nested events and
// assessments.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.fetchRun(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// GetRunResults handles GET /runs/{id}/results, returning only the per-event
// assessments without the run envelope.
func (h *Handler) GetRunResults(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.fetchRun(w, r)
	if !ok {
		return
	}
	events := rec.Events
	if events == nil {
		events = []store.EventRecord{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"run_id": rec.ID,
		"status": rec.Status,
		"events": events,
	})
}

// DeleteRun handles DELETE /runs/{id}.
func (h *Handler) DeleteRun(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.fetchRun(w, r)
	if !ok {
		return
	}
	if err := h.store.DeleteRun(r.Context(), rec.ID); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "run deleted"})
}

// fetchRun loads the {id} run and writes the error response itself when the
// lookup fails.
func (h *Handler) fetchRun(w http.ResponseWriter, r *http.Request) (*store.RunRecord, bool) {
	if h.store == nil {
		respondError(w, http.StatusServiceUnavailable, "run history is not enabled")
		return nil, false
	}
	id := mux.Vars(r)["id"]
	rec, err := h.store.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			respondError(w, http.StatusNotFound, fmt.Sprintf("run %s not found", id))
			return nil, false
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return rec, true
}

// HealthzHandler serves the liveness and readiness probes.
type HealthzHandler struct {
	store store.Store
}

// NewHealthzHandler creates a healthz handler.
func NewHealthzHandler(st store.Store) *HealthzHandler {
	return &HealthzHandler{store: st}
}

// Live handles GET /healthz and /healthz/live: the process is up.
func (h *HealthzHandler) Live(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready handles GET /healthz/ready: dependencies answer within two seconds.
func (h *HealthzHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.store != nil {
		if err := h.store.Ping(ctx); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"reason": "database_unavailable",
				"error":  err.Error(),
			})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("query parameter %q must be a non-negative integer", key)
	}
	return v, nil
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
