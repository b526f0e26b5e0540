// Package respond writes JSON bodies and maps domain errors to HTTP
// statuses.
package respond

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"tagbox/internal/models"
	"tagbox/internal/security"
	"tagbox/internal/storage"
)

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

func Message(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"message": message})
}

func Fail(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// Error translates err for user. Access failures answer 401 for guests
// and 403 for everyone else; unexpected errors are logged and hidden.
func Error(w http.ResponseWriter, r *http.Request, logger *slog.Logger, user *models.User, err error) {
	switch {
	case errors.Is(err, security.ErrLoginFailure):
		Fail(w, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, security.ErrInvalidCredentials):
		Fail(w, http.StatusForbidden, "Invalid credentials")
	case errors.Is(err, security.ErrAccessDenied):
		if user.IsGuest() {
			Fail(w, http.StatusUnauthorized, "Login required")
			return
		}
		Fail(w, http.StatusForbidden, err.Error())
	case errors.Is(err, security.ErrInvalidUsername):
		Fail(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, security.ErrUserExists):
		Fail(w, http.StatusConflict, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		Fail(w, http.StatusNotFound, "Not found")
	case errors.Is(err, models.ErrUnsupportedMediaType):
		Fail(w, http.StatusUnsupportedMediaType, err.Error())
	default:
		logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		Fail(w, http.StatusInternalServerError, "Internal server error")
	}
}
