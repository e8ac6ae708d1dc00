package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/finagent/identity/internal/auth"
	"github.com/finagent/identity/internal/handlers"
	"github.com/finagent/identity/internal/middleware"
	"github.com/finagent/identity/internal/models"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	userHandler *handlers.UserHandler,
	adminHandler *handlers.AdminHandler,
	tokenManager *auth.TokenManager,
	revocations auth.RevocationChecker,
	rateLimitConfig middleware.RateLimitConfig,
) {
	// IP-level throttle on the credential endpoints
	router.With(middleware.RateLimitByIP(rateLimitConfig)).Post("/auth/register", authHandler.Register)
	router.With(middleware.RateLimitByIP(rateLimitConfig)).Post("/auth/login", authHandler.Login)
	router.With(middleware.RateLimitByIP(rateLimitConfig)).Post("/auth/refresh", authHandler.Refresh)

	// Logout stays outside the access-token gate so an expired or already
	// revoked token can still be surrendered; the handler verifies the
	// signature itself.
	router.Post("/auth/logout", authHandler.Logout)

	// Protected routes - authentication required
	router.Group(func(r chi.Router) {
		r.Use(auth.Middleware(tokenManager, revocations))

		r.Get("/auth/me", userHandler.Me)

		// Own account
		r.Get("/users/me", userHandler.Me)
		r.Patch("/users/me", userHandler.UpdateProfile)
		r.Put("/users/me/password", userHandler.ChangePassword)
		r.Delete("/users/me", userHandler.DeleteAccount)

		// Admin routes - role ordering admits admin and sysadmin
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(models.RoleAdmin))

			r.Get("/admin/users", adminHandler.ListUsers)
			r.Post("/admin/users", adminHandler.CreateUser)
			r.Get("/admin/users/{id}", adminHandler.GetUser)
			r.Patch("/admin/users/{id}", adminHandler.UpdateUser)
			r.Delete("/admin/users/{id}", adminHandler.DeleteUser)
			r.Post("/admin/users/{id}/unlock", adminHandler.UnlockUser)
			r.Get("/admin/audit", adminHandler.GetAuditLogs)
		})

		// Dashboard aggregates carry lockout data; sysadmin only
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(models.RoleSysadmin))

			r.Get("/admin/stats", adminHandler.GetStats)
			r.Get("/admin/activity", adminHandler.GetActivity)
		})
	})
}
