package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/parth-sh/backend-api/internal/auth"
	"github.com/parth-sh/backend-api/internal/config"
)

var defaultAllowedOrigins = []string{"http://localhost:*", "http://127.0.0.1:*"}

type Api struct {
	Config *config.Config
	Router *chi.Mux
	flows  *auth.Flows
	logger *slog.Logger
}

func NewApi(cfg *config.Config, flows *auth.Flows, logger *slog.Logger) (*Api, error) {
	if cfg.APIPort == 0 {
		return nil, errors.New("Must have at least a port to start API")
	}
	if flows == nil {
		return nil, errors.New("auth flows are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	api := &Api{
		Config: cfg,
		Router: chi.NewRouter(),
		flows:  flows,
		logger: logger.With("component", "api"),
	}
	api.setupRoutes()
	return api, nil
}

func (api *Api) setupRoutes() {
	r := api.Router

	origins := api.Config.CORS.AllowedOrigins
	if len(origins) == 0 {
		origins = defaultAllowedOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/up"))
	r.Use(api.LoadSession)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		api.respondErrors(w, r, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		api.respondErrors(w, r, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Post("/sign-in", api.SignInHandler)
	r.Get("/registration/confirm-email", api.ConfirmEmailHandler)

	// Signed-out only
	r.Group(func(r chi.Router) {
		r.Use(api.RequireSignedOut)
		r.Post("/registration", api.RegisterHandler)
		r.Post("/password-reset", api.RequestPasswordResetHandler)
		r.Put("/password-reset", api.CompletePasswordResetHandler)
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(api.RequireAuth)
		r.Delete("/session", api.SignOutHandler)
		r.Put("/password", api.ChangePasswordHandler)
		r.Get("/api/users/find-by-email", api.FindByEmailHandler)
	})
}
