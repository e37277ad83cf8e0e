// Package router wires handlers and middleware onto the Echo instance.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/clinic-appointments/internal/access"
	"github.com/iliyamo/clinic-appointments/internal/config"
	"github.com/iliyamo/clinic-appointments/internal/handler"
	"github.com/iliyamo/clinic-appointments/internal/middleware"
)

// Deps is everything the routes need.  Redis may be nil, in which case rate
// limiting and caching pass requests through.
type Deps struct {
	Verifier     middleware.TokenVerifier
	DB           handler.Pinger
	Redis        *redis.Client
	RateLimit    config.RateLimitConfig
	Cache        config.CacheConfig
	Auth         *handler.AuthHandler
	Users        *handler.UserHandler
	Doctors      *handler.DoctorHandler
	Appointments *handler.AppointmentHandler
	Admin        *handler.AdminHandler
}

// Register mounts every route.
func Register(e *echo.Echo, d Deps) {
	RegisterRoutes(e, d.DB)
	RegisterAuth(e, d)
	RegisterUsers(e, d)
	RegisterDoctors(e, d)
	RegisterAppointments(e, d)
	RegisterAdmin(e, d)
}

// RegisterRoutes registers the unauthenticated health endpoints.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health)
	if db != nil {
		e.GET("/readyz", handler.Ready(db))
	}
}

// RegisterAuth mounts /auth.  Every route is rate limited; logout-all also
// needs a bearer token.
func RegisterAuth(e *echo.Echo, d Deps) {
	g := e.Group("/auth", middleware.NewTokenBucket(d.RateLimit, d.Redis))
	g.POST("/register", d.Auth.Register)
	g.POST("/login", d.Auth.Login)
	g.POST("/refresh", d.Auth.Refresh)
	g.POST("/logout", d.Auth.Logout)
	g.POST("/logout-all", d.Auth.LogoutAll,
		middleware.JWTAuth(d.Verifier), middleware.Authorize(access.ManageOwnAccount))
}

// RegisterUsers mounts /users: /users/me for any account, the rest for admins.
func RegisterUsers(e *echo.Echo, d Deps) {
	g := e.Group("/users", middleware.JWTAuth(d.Verifier))

	own := middleware.Authorize(access.ManageOwnAccount)
	g.GET("/me", d.Users.Me, own)
	g.PATCH("/me", d.Users.UpdateMe, own)
	g.DELETE("/me", d.Users.DeleteMe, own)

	manage := middleware.Authorize(access.ManageUsers)
	g.GET("", d.Users.List, manage)
	g.GET("/:id", d.Users.Get, manage)
	g.PATCH("/:id", d.Users.Update, manage)
	g.DELETE("/:id", d.Users.Delete, manage)
}

// RegisterDoctors mounts the public directory and its admin mutations.
// Anonymous directory reads are cached; an admin token on a read shows
// inactive doctors and skips the cache.
func RegisterDoctors(e *echo.Echo, d Deps) {
	g := e.Group("/doctors")

	optional := middleware.OptionalAuth(d.Verifier, access.ManageDoctors)
	cache := middleware.NewRedisCache(d.Cache, d.Redis)
	g.GET("", d.Doctors.List, optional, cache)
	g.GET("/:id", d.Doctors.Get, optional, cache)
	g.GET("/:id/slots", d.Doctors.Slots, optional)

	admin := []echo.MiddlewareFunc{
		middleware.JWTAuth(d.Verifier),
		middleware.Authorize(access.ManageDoctors),
		middleware.InvalidateCache(d.Cache, d.Redis),
	}
	g.POST("", d.Doctors.Create, admin...)
	g.PATCH("/:id", d.Doctors.Update, admin...)
}

// RegisterAppointments mounts /appointments.  Ownership is checked by the
// booking ledger once the appointment is loaded.
func RegisterAppointments(e *echo.Echo, d Deps) {
	g := e.Group("/appointments", middleware.JWTAuth(d.Verifier))
	g.POST("", d.Appointments.Create, middleware.Authorize(access.CreateAppointment))
	g.GET("", d.Appointments.List, middleware.Authorize(access.ListAppointments))
	g.GET("/:id", d.Appointments.Get, middleware.Authorize(access.ViewAppointment))
	g.PATCH("/:id/cancel", d.Appointments.Cancel, middleware.Authorize(access.CancelAppointment))
	g.PATCH("/:id/complete", d.Appointments.Complete, middleware.Authorize(access.CompleteAppointment))
}

// RegisterAdmin mounts /admin.
func RegisterAdmin(e *echo.Echo, d Deps) {
	g := e.Group("/admin", middleware.JWTAuth(d.Verifier), middleware.Authorize(access.ViewStats))
	g.GET("/stats", d.Admin.GetStats)
}
