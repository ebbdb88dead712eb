package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"
)

// APIResponse is the envelope of every reply
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func writeSuccess(w http.ResponseWriter, logger zerolog.Logger, message string, data interface{}) {
	writeJSON(w, logger, http.StatusOK, APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

func writeError(w http.ResponseWriter, logger zerolog.Logger, status int, message string, err error) {
	response := APIResponse{
		Success: false,
		Message: message,
	}
	if err != nil {
		response.Error = err.Error()
	}
	writeJSON(w, logger, status, response)
}

func writeJSON(w http.ResponseWriter, logger zerolog.Logger, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error().
			Err(err).
			Int("status_code", status).
			Msg("Failed to encode JSON response")
	}
}

// queryInt reads a positive integer query parameter, falling back to def
// and capping at ceiling
func queryInt(r *http.Request, name string, def, ceiling int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	if v > ceiling {
		return ceiling
	}
	return v
}
