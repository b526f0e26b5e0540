package router

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	"github.com/gorilla/mux"

	"tagbox/internal/db"
	"tagbox/internal/gallery"
	"tagbox/internal/http/handlers"
	"tagbox/internal/http/middleware"
	"tagbox/internal/models"
	"tagbox/internal/search"
	"tagbox/internal/security"
)

const changePasswordPath = "/api/change_password"

type Deps struct {
	DB       *db.DB
	Gallery  *gallery.Gallery
	Searcher *search.Searcher
	Auth     *security.Provider
	Cookies  *security.CookieTransport
	Logger   *slog.Logger
	// LoginRateLimit is login attempts per minute per IP; 0 disables it.
	LoginRateLimit int
}

func Setup(d Deps) *mux.Router {
	r := mux.NewRouter()
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.Logging(logger))
	r.Use(middleware.Authenticate(d.Auth, d.Cookies, logger))
	r.Use(middleware.PasswordReset(changePasswordPath, "/api/login", "/api/logout", "/api/me"))

	authHandler := handlers.NewAuthHandler(d.Auth, d.Cookies, logger)
	imageHandler := handlers.NewImageHandler(d.Gallery, d.Searcher, logger)
	adminHandler := handlers.NewAdminHandler(d.DB, d.Auth, logger)

	require := func(right models.Right, h http.HandlerFunc) http.Handler {
		return middleware.RequireRight(right, logger)(h)
	}

	var login http.Handler = http.HandlerFunc(authHandler.Login)
	if d.LoginRateLimit > 0 {
		login = httprate.LimitByIP(d.LoginRateLimit, time.Minute)(login)
	}

	r.Handle("/api/login", login).Methods("POST")
	r.HandleFunc("/api/logout", authHandler.Logout).Methods("POST")
	r.Handle(changePasswordPath, middleware.RequireLogin(logger)(http.HandlerFunc(authHandler.ChangePassword))).Methods("POST")
	r.HandleFunc("/api/me", authHandler.Me).Methods("GET")

	r.HandleFunc("/api/search", imageHandler.Search).Methods("GET")
	r.Handle("/api/images", require(models.RightUpload, imageHandler.Upload)).Methods("POST")
	r.HandleFunc("/api/images/{id}", imageHandler.View).Methods("GET")
	r.Handle("/api/images/{id}", require(models.RightUpload, imageHandler.Edit)).Methods("PUT")
	r.Handle("/api/images/{id}", require(models.RightAdmin, imageHandler.Delete)).Methods("DELETE")

	r.Handle("/api/admin/users", require(models.RightAdmin, adminHandler.GetAllUsers)).Methods("GET")
	r.Handle("/api/admin/users", require(models.RightAdmin, adminHandler.CreateUser)).Methods("POST")
	r.Handle("/api/admin/users/{username}/rights", require(models.RightAdmin, adminHandler.SetRights)).Methods("PUT")

	r.HandleFunc("/images/mini/{filename}", imageHandler.ServeThumbnail).Methods("GET")
	r.HandleFunc("/images/{filename}", imageHandler.ServeOriginal).Methods("GET")

	return r
}
