// Package httpx maps service results and the error taxonomy onto HTTP
// responses.
package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/bigkid-dev/Bmovez/internal/apperr"
)

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// WriteError translates an error into a status code. Anything outside the
// taxonomy is a 500 and the body stays generic so internals do not leak.
func WriteError(w http.ResponseWriter, err error) {
	var vErrs validator.ValidationErrors

	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeMessage(w, http.StatusNotFound, "not found")
	case errors.Is(err, apperr.ErrForbidden):
		writeMessage(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, apperr.ErrInvalidReference):
		writeMessage(w, http.StatusBadRequest, "invalid reference")
	case errors.Is(err, apperr.ErrConflict):
		writeMessage(w, http.StatusConflict, "conflict")
	case errors.As(err, &vErrs):
		writeMessage(w, http.StatusBadRequest, vErrs.Error())
	default:
		writeMessage(w, http.StatusInternalServerError, "internal error")
	}
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]string{"detail": msg})
}
