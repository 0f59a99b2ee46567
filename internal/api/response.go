package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

var (
	errValidation = errors.New("validation error")
	errNotFound   = errors.New("not found")
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			s.logger.Error("failed to encode response", slog.String("error", err.Error()))
		}
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errValidation):
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "validation_error", Message: err.Error()})
	case errors.Is(err, errNotFound):
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "not_found", Message: err.Error()})
	default:
		s.logger.Error("request failed", "error", err)
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error:   "internal_error",
			Message: "an internal error occurred",
		})
	}
}
