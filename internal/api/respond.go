package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/seantiz/dss/internal/dssclient"
)

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// writeBackendError maps a DSS client error to a response. Client errors
// reported by the backend keep their status; everything else is a 502.
func (s *Server) writeBackendError(w http.ResponseWriter, op string, err error) {
	var se *dssclient.StatusError
	switch {
	case errors.As(err, &se) && se.Code >= 400 && se.Code < 500:
		s.writeError(w, se.Code, op+": backend rejected request")
	case errors.Is(err, dssclient.ErrNetwork):
		s.logger.Error(op, "error", err)
		s.writeError(w, http.StatusBadGateway, op+": backend unreachable")
	case errors.Is(err, dssclient.ErrParse):
		s.logger.Error(op, "error", err)
		s.writeError(w, http.StatusBadGateway, op+": malformed backend response")
	default:
		s.logger.Error(op, "error", err)
		s.writeError(w, http.StatusBadGateway, op+": backend error")
	}
}
