package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// ErrorResponse is the JSON body of every error answer.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError logs err (when present) and writes message to the client.
// The underlying error is never sent to the client.
func WriteError(w http.ResponseWriter, status int, message string, err error, logger *zap.SugaredLogger) {
	if err != nil && logger != nil {
		logger.Errorw(message,
			"error", err.Error(),
			"status_code", status,
		)
	}
	WriteJSON(w, status, ErrorResponse{Error: message})
}
