// Package server exposes the REST surface the orchestrator and operator
// tooling depend on: source registration, ingestion triggers, state rows, and
// filtered permit listings.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/roofsignal/permit-ingest/internal/ingest"
	"github.com/roofsignal/permit-ingest/internal/model"
	"github.com/roofsignal/permit-ingest/internal/store"
)

// Server carries the handler dependencies.
type Server struct {
	store        store.Store
	orchestrator *ingest.Orchestrator

	// bgCtx outlives individual requests: ingestion kicked off by a 202
	// response runs under the server's lifetime, not the request's.
	bgCtx context.Context
}

// New creates the API server.
func New(bgCtx context.Context, st store.Store, orch *ingest.Orchestrator) *Server {
	return &Server{store: st, orchestrator: orch, bgCtx: bgCtx}
}

// Router assembles the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/sources", func(r chi.Router) {
		r.Get("/", s.handleListSources)
		r.Post("/", s.handleCreateSource)
		r.Get("/state", s.handleListStates)
		r.Patch("/{id}", s.handlePatchSource)
		r.Post("/{id}/ingest", s.handleIngest)
	})

	r.Route("/permits", func(r chi.Router) {
		r.Get("/", s.handleListPermits)
		r.Get("/stats", s.handlePermitStats)
		r.Get("/{id}", s.handleGetPermit)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.store.GetSources(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sources == nil {
		sources = []model.Source{}
	}
	writeJSON(w, http.StatusOK, sources)
}

func (s *Server) handleCreateSource(w http.ResponseWriter, r *http.Request) {
	var src model.Source
	if err := json.NewDecoder(r.Body).Decode(&src); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if src.Name == "" || src.EndpointURL == "" {
		writeError(w, http.StatusBadRequest, "name and endpoint_url are required")
		return
	}
	if !src.Platform.Valid() {
		writeError(w, http.StatusBadRequest, "unknown platform")
		return
	}

	created, err := s.store.CreateSource(r.Context(), src)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handlePatchSource(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid source id")
		return
	}

	var patch model.SourcePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := s.store.UpdateSource(r.Context(), id, patch)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleListStates(w http.ResponseWriter, r *http.Request) {
	states, err := s.store.GetAllSourceStates(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if states == nil {
		states = []model.SourceState{}
	}
	writeJSON(w, http.StatusOK, states)
}

// handleIngest kicks off a background ingestion and returns 202 immediately.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid source id")
		return
	}

	mode, err := ingest.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	src, err := s.store.GetSource(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if src == nil {
		writeError(w, http.StatusNotFound, "source not found")
		return
	}

	go func() {
		var runErr error
		if mode == ingest.ModeDeep {
			runErr = s.orchestrator.RunDeepIngestion(s.bgCtx, id)
		} else {
			_, runErr = s.orchestrator.RunIngestion(s.bgCtx, id, mode)
		}
		if runErr != nil {
			if errors.Is(runErr, ingest.ErrRunInProgress) {
				zap.L().Info("ingestion request dropped: run in progress", zap.Int64("source_id", id))
				return
			}
			zap.L().Error("triggered ingestion failed",
				zap.Int64("source_id", id),
				zap.String("mode", string(mode)),
				zap.Error(runErr),
			)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":    "accepted",
		"source_id": id,
		"mode":      string(mode),
	})
}

// parseBBox parses "west,south,east,north" decimal degrees.
func parseBBox(s string) (*store.BBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, errors.New("bbox must be west,south,east,north")
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, errors.New("bbox components must be decimal degrees")
		}
		vals[i] = v
	}
	return &store.BBox{West: vals[0], South: vals[1], East: vals[2], North: vals[3]}, nil
}

func (s *Server) handleListPermits(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.PermitFilter{
		City:       q.Get("city"),
		State:      q.Get("state"),
		PermitType: q.Get("type"),
		DateFrom:   q.Get("date_from"),
		DateTo:     q.Get("date_to"),
	}

	if bbox := q.Get("bbox"); bbox != "" {
		parsed, err := parseBBox(bbox)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.BBox = parsed
	}
	if v := q.Get("roofing_only"); v == "true" || v == "1" {
		filter.RoofingOnly = true
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid offset")
			return
		}
		filter.Offset = n
	}

	permits, total, err := s.store.GetPermits(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if permits == nil {
		permits = []model.Permit{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"permits": permits,
		"total":   total,
	})
}

func (s *Server) handlePermitStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetPermitStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleGetPermit(w http.ResponseWriter, r *http.Request) {
	permit, err := s.store.GetPermit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if permit == nil {
		writeError(w, http.StatusNotFound, "permit not found")
		return
	}
	writeJSON(w, http.StatusOK, permit)
}
