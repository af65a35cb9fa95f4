package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/markdave123-py/docflow/internal/core"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &core.ValidationError{Message: "invalid request body: " + err.Error()}
	}
	return nil
}

// StatusFor maps a service error to its HTTP status.
func StatusFor(err error) int {
	var (
		verr *core.ValidationError
		ise  *core.InvalidStateError
		afe  *core.AmbiguousFailureError
		ue   *core.UnrecoverableError
	)
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.As(err, &ise), errors.As(err, &afe), errors.Is(err, core.ErrStatusConflict):
		return http.StatusConflict
	case errors.As(err, &ue):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrQueueFull), errors.Is(err, core.ErrExecutorStopped):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeError renders err with the mapped status. Internal errors are logged
// and replaced by a generic message.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Error: msg})
}
