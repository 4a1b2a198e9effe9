package api

import (
	"encoding/json"
	"net/http"
)

const maxUploadSize = 64 << 20 // 64 MB

type listModelsResponse struct {
	Models []string `json:"models"`
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.client.ListModels(r.Context())
	if err != nil {
		s.writeBackendError(w, "list models", err)
		return
	}
	s.writeJSON(w, http.StatusOK, listModelsResponse{Models: models})
}

// handleUploadModel forwards the "model" file to the backend and echoes its
// reply, which browsers use as the signal to refresh the model list.
func (s *Server) handleUploadModel(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	file, header, err := r.FormFile("model")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "model file is required")
		return
	}
	defer file.Close()

	reply, err := s.client.UploadModel(r.Context(), header.Filename, file)
	if err != nil {
		s.writeBackendError(w, "upload model", err)
		return
	}

	s.logger.Info("model uploaded", "model_name", header.Filename)
	s.writeJSON(w, http.StatusOK, json.RawMessage(reply))
}
