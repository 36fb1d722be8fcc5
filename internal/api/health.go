package api

import (
	"net/http"
)

type healthResponse struct {
	Status     string `json:"status"`
	Blueprints int    `json:"blueprints"`
	Executors  int    `json:"executors"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:     "ok",
		Blueprints: len(s.engine.Blueprints()),
		Executors:  len(s.executors.List()),
	})
}
