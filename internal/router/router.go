package router

import (
	"net/http"

	"github.com/entrega-local/api/internal/config"
	"github.com/entrega-local/api/internal/enum"
	"github.com/entrega-local/api/internal/handler"
	mw "github.com/entrega-local/api/internal/middleware"
	"github.com/entrega-local/api/internal/service"
	"github.com/entrega-local/api/internal/store"
	"github.com/entrega-local/api/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// New creates a Chi router with all application routes wired up.
// adminPasswordHash is a bcrypt hash of the admin dashboard password.
func New(cfg *config.Config, st store.Store, hub *ws.Hub, adminPasswordHash []byte) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"}, // customer checkout is a public page
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","version":"1.0.0"}`))
	})

	// Auth routes (public)
	authHandler := handler.NewAuthHandler(st, cfg.JWTSecret, adminPasswordHash)
	authHandler.RegisterRoutes(r)

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws/orders", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, w, r)
	})

	orderService := service.NewOrderService(st, service.PixConfig{
		Key:        cfg.PixKey,
		HolderName: cfg.PixHolderName,
		City:       cfg.PixCity,
	})
	orderHandler := handler.NewOrderHandler(orderService, hub, handler.PixInfo{
		Key:        cfg.PixKey,
		HolderName: cfg.PixHolderName,
		BankName:   cfg.PixBankName,
	}, cfg.WhatsAppNumber)
	menuHandler := handler.NewMenuHandler(st)

	// Customer-facing routes (anonymous)
	menuHandler.RegisterPublicRoutes(r)
	orderHandler.RegisterPublicRoutes(r)

	// Protected routes (require authentication)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		// Staff routes (admin or driver; per-route role policy inside)
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireRole(enum.RoleAdmin, enum.RoleDriver))
			orderHandler.RegisterStaffRoutes(r)
		})

		// Admin-only routes
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireRole(enum.RoleAdmin))
			menuHandler.RegisterAdminRoutes(r)

			driverHandler := handler.NewDriverHandler(st)
			driverHandler.RegisterAdminRoutes(r)
		})
	})

	return r
}
