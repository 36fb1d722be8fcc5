package api

import (
	"errors"
	"net/http"

	"github.com/seantiz/botrunner/internal/validate"
)

type validateResponse struct {
	Valid bool `json:"valid"`
}

// handleValidate checks a bot runner request without starting a job.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	data, ok := s.decodeObject(w, r)
	if !ok {
		return
	}

	err := validate.Request(data)
	if err == nil {
		s.writeJSON(w, http.StatusOK, validateResponse{Valid: true})
		return
	}

	var verr *validate.Error
	if errors.As(err, &verr) {
		validationRejections.WithLabelValues(verr.Code).Inc()
		s.writeJSON(w, http.StatusUnprocessableEntity, verr.Envelope())
		return
	}
	s.logger.Error("validate request", "error", err)
	s.writeError(w, http.StatusInternalServerError, "failed to validate request")
}
