package api

import (
	"net/http"
)

// statsResponse is the JSON response for GET /v1/stats.
type statsResponse struct {
	Total       int            `json:"total"`
	ByStatus    map[string]int `json:"by_status"`
	ByBlueprint map[string]int `json:"by_blueprint"`
	ByAction    map[string]int `json:"by_action"`
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetJobStats(r.Context())
	if err != nil {
		s.logger.Error("get job stats", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	s.writeJSON(w, http.StatusOK, statsResponse{
		Total:       stats.Total,
		ByStatus:    stats.CountByStatus,
		ByBlueprint: stats.CountByBlueprint,
		ByAction:    stats.CountByAction,
	})
}
