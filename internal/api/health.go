package api

import "net/http"

type healthResponse struct {
	Status         string `json:"status"`
	Backend        string `json:"backend"`
	ActiveSessions int    `json:"active_sessions"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:         "ok",
		Backend:        s.client.BaseURL(),
		ActiveSessions: len(s.engine.Active()),
	})
}
