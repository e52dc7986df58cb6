package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/pageforge/pageforge/internal/types"
)

// writeError emits a RenderError as the JSON error body with the status
// code its kind maps to.
func writeError(w http.ResponseWriter, r *http.Request, kind types.Kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(kind.HTTPStatus())

	resp := &types.RenderError{
		Kind:      kind,
		Message:   message,
		RequestID: RequestIDFrom(r.Context()),
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Str("message", message).Msg("Failed to encode middleware error response")
	}
}
