package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/editor"
)

const maxBodyBytes = 10 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		slog.Error("api: json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error  string         `json:"error"`
	Signal *editor.Signal `json:"signal,omitempty"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// decode reads a JSON body into dst and runs its validation rules.
func decode(w http.ResponseWriter, r *http.Request, dst validation.Validatable) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	if err := dst.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return false
	}
	return true
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrNotFound),
		errors.Is(err, apperr.ErrParentNotFound),
		errors.Is(err, apperr.ErrEntryNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrConflict),
		errors.Is(err, apperr.ErrAlreadyExists),
		errors.Is(err, apperr.ErrWriteConflict),
		errors.Is(err, apperr.ErrNoPendingChanges):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrInvalidName),
		errors.Is(err, apperr.ErrMalformedNavigation):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrLocked):
		return http.StatusForbidden
	case errors.Is(err, apperr.ErrCommitFailed):
		return http.StatusBadGateway
	case errors.Is(err, apperr.ErrUnsupported):
		return http.StatusNotImplemented
	}
	return http.StatusInternalServerError
}

// writeError writes err with its mapped status. Unexpected errors are logged
// and their text hidden.
func writeError(w http.ResponseWriter, op string, err error, sig *editor.Signal) {
	status := statusFor(err)
	body := errResponse{Error: err.Error(), Signal: sig}
	if status == http.StatusInternalServerError {
		slog.Error("api: "+op+" failed", slog.String("error", err.Error()))
		body.Error = "internal error"
	}
	writeJSON(w, status, body)
}
