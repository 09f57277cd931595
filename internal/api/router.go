package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/lumanagi/lumanagi-auth/internal/api/handlers"
	"github.com/lumanagi/lumanagi-auth/internal/api/middleware"
	"github.com/lumanagi/lumanagi-auth/internal/domain"
	"github.com/lumanagi/lumanagi-auth/internal/service"
)

// NewRouter wires the auth API. loginLimiter may be nil when Redis is
// not configured; the login route is then unthrottled.
func NewRouter(services *service.Services, loginLimiter *middleware.RateLimiter) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.RequestID)
	r.Use(middleware.CORS)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	authHandler := handlers.NewAuthHandler(services.Auth)
	usersHandler := handlers.NewUsersHandler(services.Auth)

	r.Route("/api/auth", func(r chi.Router) {
		// Public routes
		r.Group(func(r chi.Router) {
			if loginLimiter != nil {
				r.Use(loginLimiter.Middleware)
			}
			r.Post("/login", authHandler.Login)
		})
		r.Post("/register", authHandler.Register)
		r.Post("/refresh", authHandler.Refresh)
		r.Post("/logout", authHandler.Logout)
		r.Post("/google", authHandler.GoogleLogin)
		r.Get("/google/url", authHandler.GoogleAuthURL)
		r.Get("/google/callback", authHandler.GoogleCallback)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(services.Auth))
			r.Get("/me", authHandler.Me)
			r.Post("/logout-all", authHandler.LogoutAll)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(domain.RoleAdmin))
				r.Get("/users", usersHandler.List)
			})
		})
	})

	return r
}
