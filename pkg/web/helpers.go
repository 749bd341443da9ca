package web

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
)

const maxBodyBytes = 1 << 20

func RespondJSON(w http.ResponseWriter, logger *slog.Logger, status int, payload any) {
	if payload == nil {
		w.WriteHeader(status)
		return
	}

	response, err := json.Marshal(payload)
	if err != nil {
		logger.Error("Error encoding response to JSON", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(response)
}

func RespondError(w http.ResponseWriter, logger *slog.Logger, status int, message string) {
	RespondJSON(w, logger, status, map[string]string{"error": message})
}

// DecodeJSON reads a single JSON document of at most 1 MiB into dst.
// On failure it writes a 400 response and returns false.
func DecodeJSON(w http.ResponseWriter, r *http.Request, logger *slog.Logger, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		msg := "Invalid request payload"
		if errors.Is(err, io.EOF) {
			msg = "Request body is empty"
		}
		logger.Debug("Failed to decode request body", "error", err)
		RespondError(w, logger, http.StatusBadRequest, msg)
		return false
	}
	if dec.More() {
		RespondError(w, logger, http.StatusBadRequest, "Request body must contain a single JSON object")
		return false
	}
	return true
}

// RespondValidation writes a 400 response listing the failed fields.
func RespondValidation(w http.ResponseWriter, logger *slog.Logger, fields map[string]string) {
	RespondJSON(w, logger, http.StatusBadRequest, map[string]any{"validation_errors": fields})
}
