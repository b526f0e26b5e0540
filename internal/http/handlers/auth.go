package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"tagbox/internal/http/middleware"
	"tagbox/internal/http/respond"
	"tagbox/internal/security"
)

type AuthHandler struct {
	auth    *security.Provider
	cookies *security.CookieTransport
	log     *slog.Logger
}

func NewAuthHandler(auth *security.Provider, cookies *security.CookieTransport, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		auth:    auth,
		cookies: cookies,
		log:     logger,
	}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Fail(w, http.StatusBadRequest, "Invalid request")
		return
	}

	if req.Username == "" || req.Password == "" {
		respond.Fail(w, http.StatusBadRequest, "Username and password required")
		return
	}

	login, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		respond.Error(w, r, h.log, middleware.UserFrom(r.Context()), err)
		return
	}

	if err := h.cookies.WriteToken(w, r, login.Token); err != nil {
		h.auth.Logout(login.Token)
		respond.Error(w, r, h.log, middleware.UserFrom(r.Context()), err)
		return
	}

	respond.JSON(w, http.StatusOK, map[string]any{
		"message":    "Login successful",
		"username":   login.Username,
		"expires_at": login.Expiry,
	})
}

// Logout is safe to call without a session.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.auth.Logout(middleware.TokenFrom(r.Context()))
	if err := h.cookies.ClearToken(w, r); err != nil {
		h.log.Warn("failed to clear session cookie", "error", err)
	}
	respond.Message(w, http.StatusOK, "Logout successful")
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OldPassword     string `json:"old_password"`
		NewPassword     string `json:"new_password"`
		ConfirmPassword string `json:"confirm_password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Fail(w, http.StatusBadRequest, "Invalid request")
		return
	}
	if req.NewPassword == "" {
		respond.Fail(w, http.StatusBadRequest, "New password required")
		return
	}
	if req.NewPassword != req.ConfirmPassword {
		respond.Fail(w, http.StatusBadRequest, "New password and confirm password do not match")
		return
	}

	user := middleware.UserFrom(r.Context())
	if err := h.auth.ChangePassword(r.Context(), user, req.OldPassword, req.NewPassword); err != nil {
		respond.Error(w, r, h.log, user, err)
		return
	}
	respond.Message(w, http.StatusOK, "Password changed successfully")
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, middleware.UserFrom(r.Context()).View())
}
