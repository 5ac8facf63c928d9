package server

import (
	"encoding/json"
	"net/http"

	"github.com/Sternrassler/coc-api-proxy/pkg/client"
)

// errorResponse is the body of every error answer.
type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

// writeJSON writes JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("Failed to write response")
	}
}

// writeError writes error response
func (s *Server) writeError(w http.ResponseWriter, status int, body errorResponse) {
	s.writeJSON(w, status, body)
}

// writeResult relays a fetch outcome. Successful payloads are written
// verbatim; failures use the classified status, with 0 mapped to 500.
func (s *Server) writeResult(w http.ResponseWriter, result client.Result) {
	if !result.OK {
		upErr := result.Err
		if upErr == nil {
			s.writeError(w, http.StatusInternalServerError, errorResponse{Error: "Internal server error"})
			return
		}
		s.writeError(w, upErr.HTTPStatus(), errorResponse{
			Error:   upErr.Message,
			Details: upErr.Details,
			Hint:    upErr.Hint,
		})
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if result.FromCache {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(result.Data); err != nil {
		s.logger.Debug().Err(err).Msg("Failed to write response body")
	}
}
