// Package fakedss is a scripted, in-memory stand-in for the DSS backend. It
// serves the same HTTP contract as the real service so the client, monitor
// and front end can be exercised without a scheduler.
package fakedss

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/seantiz/dss/internal/model"
)

const maxUploadSize = 32 << 20 // 32 MB

// Options configure a Backend.
type Options struct {
	// Models seeds the model registry.
	Models []string
	// RunningPolls is how many status polls report RUNNING before a
	// submitted execution completes.
	RunningPolls int
	// Logger receives one line per request. Nil discards.
	Logger *slog.Logger
}

type execution struct {
	id        string
	modelName string
	params    json.RawMessage
	script    []string
	polls     int
}

// status returns the status reported by the current poll and advances the
// script.
func (e *execution) status() string {
	i := e.polls
	e.polls++
	if i >= len(e.script) {
		i = len(e.script) - 1
	}
	return e.script[i]
}

// current returns the status of the latest poll without advancing.
func (e *execution) current() string {
	if e.polls == 0 {
		return e.script[0]
	}
	i := e.polls - 1
	if i >= len(e.script) {
		i = len(e.script) - 1
	}
	return e.script[i]
}

// Backend is the fake DSS service. It is safe for concurrent use.
type Backend struct {
	mu           sync.Mutex
	models       map[string]bool
	executions   map[string]*execution
	order        []string
	runningPolls int
	logger       *slog.Logger
	router       *chi.Mux
}

// New creates a fake backend.
func New(opts Options) *Backend {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	b := &Backend{
		models:       make(map[string]bool),
		executions:   make(map[string]*execution),
		runningPolls: opts.RunningPolls,
		logger:       logger,
		router:       chi.NewRouter(),
	}
	for _, m := range opts.Models {
		b.models[m] = true
	}

	b.router.Use(middleware.Recoverer)
	b.router.Get("/models", b.handleListModels)
	b.router.Post("/models", b.handleUploadModel)
	b.router.Post("/dss", b.handleExecute)
	b.router.Get("/status/{id}", b.handleStatus)
	b.router.Get("/executions", b.handleListExecutions)
	b.router.Get("/best_run/{id}", b.handleBestRun)

	return b
}

// Handler returns the HTTP handler serving the backend contract.
func (b *Backend) Handler() http.Handler {
	return b.router
}

// Script registers an execution whose successive polls return statuses in
// order. The last status repeats once the script is exhausted.
func (b *Backend) Script(id string, statuses ...string) {
	if len(statuses) == 0 {
		statuses = []string{model.StatusCompleted}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.executions[id]; !ok {
		b.order = append(b.order, id)
	}
	b.executions[id] = &execution{id: id, script: statuses}
}

// Polls returns how many status polls the execution has received.
func (b *Backend) Polls(id string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok := b.executions[id]; ok {
		return e.polls
	}
	return 0
}

func (b *Backend) handleListModels(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	names := make([]string, 0, len(b.models))
	for name := range b.models {
		names = append(names, name)
	}
	b.mu.Unlock()
	sort.Strings(names)

	b.writeJSON(w, http.StatusOK, map[string][]string{"models": names})
}

func (b *Backend) handleUploadModel(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	file, header, err := r.FormFile("model")
	if err != nil {
		b.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "model file is required"})
		return
	}
	defer file.Close()
	if _, err := io.Copy(io.Discard, file); err != nil {
		b.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "read model file"})
		return
	}

	b.mu.Lock()
	b.models[header.Filename] = true
	b.mu.Unlock()

	b.logger.Info("fakedss: model added", "model_name", header.Filename)
	b.writeJSON(w, http.StatusOK, map[string]string{"model_name": header.Filename})
}

func (b *Backend) handleExecute(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	file, _, err := r.FormFile("input")
	if err != nil {
		b.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "input file is required"})
		return
	}
	defer file.Close()

	params, err := io.ReadAll(file)
	if err != nil || !json.Valid(params) {
		b.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "input must be a JSON document"})
		return
	}

	script := make([]string, 0, b.runningPolls+1)
	for i := 0; i < b.runningPolls; i++ {
		script = append(script, model.StatusRunning)
	}
	script = append(script, model.StatusCompleted)

	id := model.NewID()
	b.mu.Lock()
	b.executions[id] = &execution{
		id:        id,
		modelName: r.FormValue("model_name"),
		params:    params,
		script:    script,
	}
	b.order = append(b.order, id)
	b.mu.Unlock()

	b.logger.Info("fakedss: execution created", "execution_id", id)
	b.writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

func (b *Backend) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	b.mu.Lock()
	e, ok := b.executions[id]
	var status string
	var polls int
	if ok {
		status = e.status()
		polls = e.polls
	}
	b.mu.Unlock()

	if !ok {
		b.writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": model.StatusNotFound})
		return
	}

	resp := map[string]any{"id": id, "status": status, "polls": polls}
	if status == model.StatusCompleted {
		resp["result"] = map[string]any{"best_run": 0, "model_name": e.modelName}
	}
	b.writeJSON(w, http.StatusOK, resp)
}

type executionSummary struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	ModelName string `json:"model_name,omitempty"`
}

func (b *Backend) handleListExecutions(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	list := make([]executionSummary, 0, len(b.order))
	for _, id := range b.order {
		e := b.executions[id]
		list = append(list, executionSummary{ID: id, Status: e.current(), ModelName: e.modelName})
	}
	b.mu.Unlock()

	b.writeJSON(w, http.StatusOK, map[string]any{"executions": list})
}

func (b *Backend) handleBestRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	b.mu.Lock()
	e, ok := b.executions[id]
	completed := ok && e.polls > 0 && e.current() == model.StatusCompleted
	var params json.RawMessage
	if ok {
		params = e.params
	}
	b.mu.Unlock()

	if !completed {
		b.writeJSON(w, http.StatusBadRequest, map[string]string{"exec_id": id})
		return
	}

	archive, err := bestRunArchive(id, params)
	if err != nil {
		b.logger.Error("fakedss: build archive", "execution_id", id, "error", err)
		b.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "build archive"})
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(archive); err != nil {
		b.logger.Error("fakedss: write archive", "execution_id", id, "error", err)
	}
}

// bestRunArchive builds a small zip holding the execution's parameters.
func bestRunArchive(id string, params json.RawMessage) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, err := zw.Create(id + "/params.json")
	if err != nil {
		return nil, err
	}
	if len(params) == 0 {
		params = json.RawMessage("{}")
	}
	if _, err := f.Write(params); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (b *Backend) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		b.logger.Error("fakedss: encode response", "error", err)
	}
}
