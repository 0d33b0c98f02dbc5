package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jal-shakti/jal-shakti-api/internal/transport/http/handlers"
	"github.com/jal-shakti/jal-shakti-api/internal/transport/http/middleware"
)

// Options — параметры сборки HTTP-роутера.
type Options struct {
	Logger   *slog.Logger
	Timeout  time.Duration
	BasePath string // например, "/api"; если пустой — роуты регистрируются на корне.
}

// NewRouter собирает http.Handler с chi и подключёнными middleware/роутами.
func NewRouter(auth handlers.AuthService, opts Options) http.Handler {
	root := chi.NewRouter()

	// Внешний -> внутренний; RequestID до Logging, чтобы id попал в лог.
	root.Use(
		middleware.Recover(),
		middleware.RequestID(),
		middleware.Logging(opts.Logger),
		middleware.Timeout(opts.Timeout),
	)

	h := handlers.New(auth)

	if opts.BasePath != "" && opts.BasePath != "/" {
		sub := chi.NewRouter()
		registerRoutes(sub, h)
		root.Mount(opts.BasePath, sub)
		return root
	}

	registerRoutes(root, h)
	return root
}

func registerRoutes(r chi.Router, h *handlers.Handlers) {
	r.Get("/health", h.Health)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Post("/refresh-token", h.RefreshToken)
		r.Post("/logout", h.Logout)

		r.With(middleware.AuthBearer(h.Auth)).Get("/me", h.Me)
	})
}
