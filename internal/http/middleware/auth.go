package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"tagbox/internal/http/respond"
	"tagbox/internal/models"
	"tagbox/internal/security"
)

// Authenticate resolves the session cookie once per request and stores the
// caller in the request context. Requests without a valid session run as
// Guest.
func Authenticate(auth *security.Provider, cookies *security.CookieTransport, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := cookies.ReadToken(r)
			user, err := auth.CurrentUser(r.Context(), token)
			if err != nil {
				respond.Error(w, r, logger, models.Guest(), err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user, token)))
		})
	}
}

// PasswordReset blocks users who must change their password from
// everything except paths under changePath and the extra allowed prefixes.
func PasswordReset(changePath string, allowed ...string) func(http.Handler) http.Handler {
	allowed = append([]string{changePath}, allowed...)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := UserFrom(r.Context())
			if user.HasAttribute(models.AttrPasswordResetRequired) && !hasAnyPrefix(r.URL.Path, allowed) {
				respond.JSON(w, http.StatusForbidden, map[string]string{
					"error":    "Password reset required",
					"redirect": changePath,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRight rejects callers lacking right.
func RequireRight(right models.Right, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := UserFrom(r.Context())
			if err := security.RequireRights(user, right); err != nil {
				respond.Error(w, r, logger, user, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireLogin rejects guests and admits any stored user whatever their
// rights.
func RequireLogin(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := UserFrom(r.Context())
			if user.IsGuest() {
				respond.Error(w, r, logger, user, &security.AccessDeniedError{Right: models.RightUser})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
