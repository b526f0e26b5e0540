package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"tagbox/internal/db"
	"tagbox/internal/http/middleware"
	"tagbox/internal/http/respond"
	"tagbox/internal/models"
	"tagbox/internal/security"
)

type AdminHandler struct {
	db   *db.DB
	auth *security.Provider
	log  *slog.Logger
}

func NewAdminHandler(db *db.DB, auth *security.Provider, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{db: db, auth: auth, log: logger}
}

func (h *AdminHandler) GetAllUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.db.ListUsers(r.Context())
	if err != nil {
		respond.Error(w, r, h.log, middleware.UserFrom(r.Context()), err)
		return
	}

	views := make([]models.UserView, 0, len(users))
	for _, u := range users {
		views = append(views, u.View())
	}
	respond.JSON(w, http.StatusOK, views)
}

// CreateUser adds a user who must change password on first login. When no
// password is given a random one is generated and returned once.
func (h *AdminHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string   `json:"username"`
		Password string   `json:"password"`
		Rights   []string `json:"rights"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Fail(w, http.StatusBadRequest, "Invalid request")
		return
	}
	if req.Username == "" {
		respond.Fail(w, http.StatusBadRequest, "Username required")
		return
	}
	rights, err := parseRights(req.Rights)
	if err != nil {
		respond.Fail(w, http.StatusBadRequest, err.Error())
		return
	}

	password, err := h.auth.CreateUser(r.Context(), req.Username, req.Password, rights...)
	if err != nil {
		respond.Error(w, r, h.log, middleware.UserFrom(r.Context()), err)
		return
	}

	body := map[string]string{"message": "User created successfully", "username": req.Username}
	if req.Password == "" {
		body["password"] = password
	}
	respond.JSON(w, http.StatusCreated, body)
}

// SetRights replaces the user's rights. Attributes are kept.
func (h *AdminHandler) SetRights(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]

	var req struct {
		Rights []string `json:"rights"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Fail(w, http.StatusBadRequest, "Invalid request")
		return
	}
	rights, err := parseRights(req.Rights)
	if err != nil {
		respond.Fail(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.db.GetUser(r.Context(), username)
	if err != nil {
		respond.Error(w, r, h.log, middleware.UserFrom(r.Context()), err)
		return
	}
	if user == nil {
		respond.Fail(w, http.StatusNotFound, "User not found")
		return
	}

	user.SetRights(rights...)
	if err := h.db.PutUser(r.Context(), user); err != nil {
		respond.Error(w, r, h.log, middleware.UserFrom(r.Context()), err)
		return
	}
	h.log.Info("rights updated", "username", username, "rights", user.RightList())
	respond.JSON(w, http.StatusOK, user.View())
}

func parseRights(names []string) ([]models.Right, error) {
	rights := make([]models.Right, 0, len(names))
	for _, name := range names {
		right, err := models.ParseRight(name)
		if err != nil {
			return nil, err
		}
		rights = append(rights, right)
	}
	return rights, nil
}
