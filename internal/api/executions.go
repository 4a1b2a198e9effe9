package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/dss/internal/dssclient"
	"github.com/seantiz/dss/internal/engine"
	"github.com/seantiz/dss/internal/model"
)

const maxInputSize = 1 << 20 // 1 MB

type submitResponse struct {
	ID string `json:"id"`
}

// executionView is the JSON shape of a monitored execution.
type executionView struct {
	ID        string                `json:"id"`
	Status    model.ExecutionStatus `json:"status"`
	Tracked   bool                  `json:"tracked"`
	Updates   int                   `json:"updates"`
	UpdatedAt time.Time             `json:"updated_at"`
}

type listExecutionsResponse struct {
	Executions []executionView `json:"executions"`
}

type historyResponse struct {
	Executions []json.RawMessage `json:"executions"`
}

// handleSubmitExecution accepts the multipart form of the original UI: an
// "input" JSON file and an optional "model_name" field.
func (s *Server) handleSubmitExecution(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxInputSize)
	file, header, err := r.FormFile("input")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "input file is required")
		return
	}
	defer file.Close()

	input, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read input file")
		return
	}
	if !json.Valid(input) {
		s.writeError(w, http.StatusBadRequest, "input must be a JSON document")
		return
	}

	id, err := s.engine.Submit(r.Context(), dssclient.ExecutionRequest{
		Input:     input,
		InputName: header.Filename,
		ModelName: r.FormValue("model_name"),
	})
	if err != nil && id == "" {
		s.writeBackendError(w, "submit execution", err)
		return
	}
	if err != nil {
		// Submitted but not monitored; the caller can still track it.
		s.logger.Error("track submitted execution", "execution_id", id, "error", err)
	}

	s.writeJSON(w, http.StatusAccepted, submitResponse{ID: id})
}

func (s *Server) handleListExecutions(w http.ResponseWriter, _ *http.Request) {
	blocks := s.engine.Renderer().Blocks()
	views := make([]executionView, 0, len(blocks))
	for _, b := range blocks {
		views = append(views, executionView{
			ID:        b.ExecutionID,
			Status:    b.Status,
			Tracked:   s.engine.Tracked(b.ExecutionID),
			Updates:   b.Updates,
			UpdatedAt: b.UpdatedAt,
		})
	}
	s.writeJSON(w, http.StatusOK, listExecutionsResponse{Executions: views})
}

// handleExecutionHistory proxies the backend's list of previous executions.
func (s *Server) handleExecutionHistory(w http.ResponseWriter, r *http.Request) {
	items, err := s.client.ListExecutions(r.Context())
	if err != nil {
		s.writeBackendError(w, "list executions", err)
		return
	}
	s.writeJSON(w, http.StatusOK, historyResponse{Executions: items})
}

func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	b, ok := s.engine.Renderer().Block(id)
	if !ok {
		if s.engine.Tracked(id) {
			// Tracked but the first poll has not answered yet.
			s.writeJSON(w, http.StatusOK, executionView{ID: id, Status: model.ExecutionStatus{ID: id}, Tracked: true})
			return
		}
		s.writeError(w, http.StatusNotFound, "execution not found")
		return
	}

	s.writeJSON(w, http.StatusOK, executionView{
		ID:        id,
		Status:    b.Status,
		Tracked:   s.engine.Tracked(id),
		Updates:   b.Updates,
		UpdatedAt: b.UpdatedAt,
	})
}

func (s *Server) handleGetBlock(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	b, ok := s.engine.Renderer().Block(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "execution not found")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, string(b.HTML)); err != nil {
		s.logger.Error("write block", "execution_id", id, "error", err)
	}
}

func (s *Server) handleTrackExecution(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	err := s.engine.Track(id)
	switch {
	case errors.Is(err, engine.ErrAlreadyTracked):
		s.writeError(w, http.StatusConflict, "execution already tracked")
		return
	case errors.Is(err, engine.ErrClosed):
		s.writeError(w, http.StatusServiceUnavailable, "shutting down")
		return
	case err != nil:
		s.logger.Error("track execution", "execution_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to track execution")
		return
	}

	s.writeJSON(w, http.StatusAccepted, submitResponse{ID: id})
}

// handleCancelExecution stops monitoring. The backend execution keeps
// running.
func (s *Server) handleCancelExecution(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.engine.Cancel(id); err != nil {
		if errors.Is(err, engine.ErrNotTracked) {
			s.writeError(w, http.StatusNotFound, "execution not tracked")
			return
		}
		s.logger.Error("cancel execution", "execution_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to cancel monitoring")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleDismissExecution removes an execution from the results page,
// stopping its monitoring first if it is still tracked.
func (s *Server) handleDismissExecution(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if !s.engine.Dismiss(id) {
		s.writeError(w, http.StatusNotFound, "execution not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleBestRun streams the backend's best run archive.
func (s *Server) handleBestRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// Disable write timeout; archives can be large.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Debug("set write deadline for best run", "error", err)
	}

	// Headers are deferred to the first body byte so a backend error can
	// still be reported as JSON.
	pw := &lazyWriter{w: w, contentType: "application/zip", filename: id + ".zip"}
	if _, err := s.client.DownloadBestRun(r.Context(), id, pw); err != nil {
		if pw.started {
			s.logger.Error("stream best run", "execution_id", id, "error", err)
			return
		}
		s.writeBackendError(w, "best run", err)
	}
}

// lazyWriter writes response headers on the first body write.
type lazyWriter struct {
	w           http.ResponseWriter
	contentType string
	filename    string
	started     bool
}

func (l *lazyWriter) Write(p []byte) (int, error) {
	if !l.started {
		l.started = true
		l.w.Header().Set("Content-Type", l.contentType)
		l.w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": l.filename}))
		l.w.WriteHeader(http.StatusOK)
	}
	return l.w.Write(p)
}
