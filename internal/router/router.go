package router

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/kiwari-pos/station/internal/config"
	"github.com/kiwari-pos/station/internal/enum"
	"github.com/kiwari-pos/station/internal/handler"
	mw "github.com/kiwari-pos/station/internal/middleware"
	"github.com/kiwari-pos/station/internal/ws"
)

// Services are the dependencies the routes are served from.
type Services struct {
	Sessions handler.SessionServicer
	Carts    handler.CartServicer
	Orders   handler.OrderServicer
	Drawer   handler.DrawerServicer
	Catalog  func(sid string) handler.CatalogSource
	Hub      *ws.Hub

	// RefreshedAt reports the last successful board refresh for /health.
	RefreshedAt func() time.Time
}

// New creates a Chi router with all station routes wired up.
// Applies authentication, rate limiting and display access middleware as needed.
func New(cfg *config.Config, svc Services) (chi.Router, error) {
	limit, err := mw.RateLimit(cfg.RateLimit)
	if err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		health := map[string]interface{}{"status": "ok"}
		if svc.RefreshedAt != nil {
			if at := svc.RefreshedAt(); !at.IsZero() {
				health["refreshedAt"] = at.UTC().Format(time.RFC3339)
			}
		}
		writeJSON(w, http.StatusOK, health)
	})

	authHandler := handler.NewAuthHandler(svc.Sessions, cfg.CookieSecure)
	r.Group(func(r chi.Router) {
		r.Use(limit)
		authHandler.RegisterRoutes(r)
	})

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws/displays/{display}", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(svc.Hub, cfg.JWTSecret, w, r)
	})

	// Protected routes (require a station session)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))
		r.Use(limit)

		authHandler.RegisterSessionRoutes(r)
		handler.NewCatalogHandler(svc.Catalog).RegisterRoutes(r)
		handler.NewCartHandler(svc.Carts).RegisterRoutes(r)
		handler.NewOrderHandler(svc.Orders).RegisterRoutes(r)

		// Till operations are cashier work.
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireRole(enum.UserRoleSuperAdmin, enum.UserRoleAdmin, enum.UserRoleCashier))
			handler.NewDrawerHandler(svc.Drawer).RegisterRoutes(r)
		})
	})

	log.Println("Router initialized with all handlers")
	return r, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
