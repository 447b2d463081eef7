// Package router maps HTTP routes onto handlers and applies the
// authentication, sales gate, rate limit and cache middleware.
package router

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticketing-system/internal/handler"
	"github.com/iliyamo/ticketing-system/internal/middleware"
)

// Guards bundles the middleware shared by route groups.  Nil middleware
// is treated as a pass-through.
type Guards struct {
	JWTSecret string
	Sales     echo.MiddlewareFunc
	RateLimit echo.MiddlewareFunc
	Cache     echo.MiddlewareFunc
}

func nop(next echo.HandlerFunc) echo.HandlerFunc { return next }

func (g Guards) sales() echo.MiddlewareFunc {
	if g.Sales == nil {
		return nop
	}
	return g.Sales
}

func (g Guards) rateLimit() echo.MiddlewareFunc {
	if g.RateLimit == nil {
		return nop
	}
	return g.RateLimit
}

func (g Guards) cache() echo.MiddlewareFunc {
	if g.Cache == nil {
		return nop
	}
	return g.Cache
}

// RegisterRoutes registers the unauthenticated operational endpoints.
// metrics may be nil.
func RegisterRoutes(e *echo.Echo, db handler.Pinger, metrics http.Handler) {
	e.GET("/healthz", handler.Health(db))
	if metrics != nil {
		e.GET("/metrics", echo.WrapHandler(metrics))
	}
}

// RegisterAdmin registers configuration and sales toggle routes.  Reading
// the active configuration is public; changing it requires ADMIN or
// VENDOR, toggling sales requires ADMIN.
func RegisterAdmin(e *echo.Echo, a *handler.AdminHandler, g Guards) {
	e.GET("/v1/config", a.GetConfig)

	auth := middleware.JWTAuth(g.JWTSecret)
	e.POST("/v1/config", a.CreateConfig, auth, middleware.RequireRole(middleware.RoleAdmin, middleware.RoleVendor))
	e.POST("/v1/system/toggle", a.ToggleSystem, auth, middleware.RequireRole(middleware.RoleAdmin))
}

// RegisterTickets registers the public ticket, booking and order routes.
func RegisterTickets(e *echo.Echo, t *handler.TicketHandler, g Guards) {
	e.GET("/v1/tickets/available", t.Available)
	e.GET("/v1/tickets/status", t.Status)
	e.GET("/v1/tickets/:id", t.Ticket)
	e.POST("/v1/tickets/book", t.Book, g.sales(), g.rateLimit())

	// Orders never change after creation, so their reads are cacheable.
	e.GET("/v1/orders/:id", t.Order, g.cache())
}

// RegisterCart registers the customer cart routes.
func RegisterCart(e *echo.Echo, h *handler.CartHandler, g Guards) {
	cart := e.Group("/v1/cart")
	cart.Use(middleware.JWTAuth(g.JWTSecret))
	cart.Use(middleware.RequireRole(middleware.RoleCustomer))

	cart.GET("", h.List)
	cart.POST("", h.Add, g.sales(), g.rateLimit())
	// releasing a hold stays open while sales are stopped
	cart.DELETE("/:holdID", h.Remove, g.rateLimit())
	cart.POST("/:holdID/checkout", h.Checkout, g.sales(), g.rateLimit())
}

// RegisterRealtime registers the availability WebSocket feed.
func RegisterRealtime(e *echo.Echo, a *handler.AvailabilityHandler) {
	e.GET("/v1/ws/availability", a.Stream)
}
