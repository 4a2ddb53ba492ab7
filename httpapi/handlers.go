package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/isdmx/plotbox/artifact"
	"github.com/isdmx/plotbox/outcome"
	"github.com/isdmx/plotbox/storage"
	"github.com/isdmx/plotbox/visualize"
)

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind outcome.Kind, detail, runID string) {
	writeJSON(w, status, errorResponse{Status: "error", Kind: kind, Detail: detail, RunID: runID})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

type generateRequest struct {
	Code              string `json:"code"`
	Language          string `json:"language"`
	OutputType        string `json:"output_type"`
	VisualizationType string `json:"visualization_type"`
}

type generateResponse struct {
	Status   string `json:"status"`
	ChartURL string `json:"chart_url"`
	RunID    string `json:"run_id"`
}

type errorResponse struct {
	Status string       `json:"status"`
	Kind   outcome.Kind `json:"kind"`
	Detail string       `json:"detail"`
	RunID  string       `json:"run_id,omitempty"`
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var body generateRequest
	if err := decodeJSON(r, &body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, outcome.KindInvalidRequest, "request body too large", "")
			return
		}
		writeError(w, http.StatusBadRequest, outcome.KindInvalidRequest, "invalid JSON: "+err.Error(), "")
		return
	}

	req, err := visualize.NewRequest(body.Code, body.Language, body.OutputType, body.VisualizationType)
	if err != nil {
		kind := outcome.KindOf(err)
		writeError(w, outcome.HTTPStatus(kind), kind, outcome.Classify("", err).Detail, "")
		return
	}

	res, err := s.generator.Generate(r.Context(), req)
	if err != nil {
		o := res.Outcome
		if o.Kind == "" {
			o = outcome.Classify("", err)
		}
		writeError(w, outcome.HTTPStatus(o.Kind), o.Kind, o.Detail, res.RunID)
		return
	}

	writeJSON(w, http.StatusOK, generateResponse{
		Status:   "success",
		ChartURL: s.cfg.Server.OutputRoute + "/" + res.Outcome.ArtifactID,
		RunID:    res.RunID,
	})
}

func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	f, err := s.artifacts.Open(id)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		http.NotFound(w, r)
		return
	}

	kind := artifact.KindRaster
	if filepath.Ext(id) == artifact.KindDocument.Extension() {
		kind = artifact.KindDocument
	}
	w.Header().Set("Content-Type", kind.ContentType())
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeContent(w, r, id, info.ModTime(), f)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		writeError(w, http.StatusServiceUnavailable, outcome.KindInternalIO, "run ledger disabled", "")
		return
	}

	opts := storage.ListOptions{Status: r.URL.Query().Get("status")}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			opts.Limit = n
		}
	}
	if offset := r.URL.Query().Get("offset"); offset != "" {
		if n, err := strconv.Atoi(offset); err == nil {
			opts.Offset = n
		}
	}

	runs, err := s.ledger.ListRuns(r.Context(), opts)
	if err != nil {
		s.logger.Error("failed to list runs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, outcome.KindInternalIO, "failed to list runs", "")
		return
	}
	if runs == nil {
		runs = []storage.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		writeError(w, http.StatusServiceUnavailable, outcome.KindInternalIO, "run ledger disabled", "")
		return
	}

	id := chi.URLParam(r, "id")
	run, err := s.ledger.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, outcome.KindInvalidRequest, "run not found", id)
			return
		}
		s.logger.Error("failed to get run", zap.String("run_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, outcome.KindInternalIO, "failed to get run", id)
		return
	}
	writeJSON(w, http.StatusOK, run)
}
