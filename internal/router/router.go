package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/mesaflow/api/internal/config"
	"github.com/mesaflow/api/internal/database"
	"github.com/mesaflow/api/internal/handler"
	mw "github.com/mesaflow/api/internal/middleware"
	"github.com/mesaflow/api/internal/notify"
	"github.com/mesaflow/api/internal/service"
	"github.com/mesaflow/api/internal/ws"
)

// New creates a Chi router with all application routes wired up.
func New(cfg *config.Config, queries *database.Queries, pool service.TxBeginner, sink notify.Sink, hub *ws.Hub) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "https://app.mesaflow.dev"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	authHandler := handler.NewAuthHandler(queries, cfg.JWTSecret)
	authHandler.RegisterRoutes(r)

	// WebSocket route validates the token itself via query param.
	if hub != nil {
		r.Get("/ws/businesses/{businessID}", func(w http.ResponseWriter, r *http.Request) {
			ws.ServeWS(hub, queries, cfg.JWTSecret, w, r)
		})
	}

	// Services share one store factory per concern, all bound to the pool's
	// transactions at call time.
	checkoutService := service.NewCheckoutService(pool, func(db database.DBTX) service.CheckoutStore {
		return database.New(db)
	}, sink)
	tabService := service.NewTabService(pool, func(db database.DBTX) service.TabStore {
		return database.New(db)
	}, checkoutService)
	statusService := service.NewOrderStatusService(pool, func(db database.DBTX) service.StatusStore {
		return database.New(db)
	}, sink)
	itemService := service.NewItemStatusService(pool, func(db database.DBTX) service.ItemStore {
		return database.New(db)
	})
	paymentService := service.NewPaymentService(pool, func(db database.DBTX) service.PaymentStore {
		return database.New(db)
	}, sink)
	placeService := service.NewPlaceService(pool, func(db database.DBTX) service.PlaceStore {
		return database.New(db)
	})
	kitchenService := service.NewKitchenService(queries)
	deliveryService := service.NewDeliveryService(queries)

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		handler.NewBusinessHandler(queries).RegisterRoutes(r)
		handler.NewProductHandler(queries).RegisterRoutes(r)
		handler.NewPlaceHandler(placeService, queries).RegisterRoutes(r)
		handler.NewKitchenHandler(kitchenService).RegisterRoutes(r)
		handler.NewDeliveryHandler(deliveryService).RegisterRoutes(r)

		var events handler.OrderBroadcaster
		if hub != nil {
			events = hub
		}
		handler.NewOrderHandler(queries, checkoutService, tabService, statusService, itemService, paymentService, events).RegisterRoutes(r)
	})

	return r
}
