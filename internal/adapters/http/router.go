package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ventas-png/control-consumo-agua/internal/application"
)

// Handler is the HTTP adapter entrypoint for auth and access-control
// use-cases. Keeping only the application dependency here preserves clean
// adapter boundaries.
type Handler struct {
	service  *application.Service
	throttle *loginThrottle
}

// NewHandler constructs an HTTP handler bound to the application service.
// The throttle limits are requests per minute and burst for the login route.
func NewHandler(service *application.Service, loginPerMinute, loginBurst int) *Handler {
	return &Handler{
		service:  service,
		throttle: newLoginThrottle(loginPerMinute, loginBurst),
	}
}

// NewRouter registers the HTTP routes and middleware stack. Centralizing
// routes here keeps auth and error behavior consistent across endpoints.
func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(loggingMiddleware)

	r.Get("/healthz", handler.healthz)
	r.Get("/readyz", handler.readyz)

	r.Route("/auth/v1", func(r chi.Router) {
		r.With(handler.throttle.middleware).Post("/login", handler.login)
		r.Get("/jwks", handler.jwks)

		r.Group(func(r chi.Router) {
			r.Use(handler.authMiddleware)
			r.Post("/logout", handler.logout)
			r.Get("/session", handler.sessionStatus)
			r.Get("/sessions", handler.listSessions)
			r.Delete("/sessions/{session_id}", handler.revokeSession)
			r.Post("/password", handler.changePassword)
			r.Get("/login-history", handler.loginHistory)
			r.Get("/security-events", handler.listSecurityEvents)
			r.Post("/users", handler.createUser)
			r.Patch("/users/{user_id}/role", handler.changeUserRole)
			r.Post("/users/{user_id}/deactivate", handler.deactivateUser)
		})
	})

	return r
}
