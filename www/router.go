package www

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ffcentral/engine"
)

type Handlers struct {
	engine   *engine.Engine
	sessions *sessions.CookieStore
	eventHub *EventHub
}

// NewRouter builds the HTTP API. The returned func disconnects SSE clients.
func NewRouter(eng *engine.Engine) (http.Handler, func()) {
	hub := NewEventHub()
	hub.SetupEngineListeners(eng)

	h := &Handlers{
		engine:   eng,
		sessions: newSessionStore(eng.AppConfig().Web.SessionSecret),
		eventHub: hub,
	}

	h.ensureDefaultAdmin(eng.DB())

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Get("/events", hub.SSEHandler)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.apiHealthCheck)
		r.Get("/orders", h.apiListOrders)
		r.Get("/orders/history", h.apiOrderHistory)
		r.Get("/orders/{orderID}", h.apiGetOrder)
		r.Get("/orders/{orderID}/audit", h.apiOrderAudit)
		r.Get("/fts", h.apiListFts)
		r.Get("/modules", h.apiListModules)
		r.Get("/blocks", h.apiListBlocks)
		r.Get("/bays", h.apiListBays)
		r.Get("/stock", h.apiListStock)
		r.Get("/charging", h.apiChargingStatus)
		r.Get("/audit", h.apiAuditLog)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)
			r.Post("/orders", h.apiRequestOrder)
			r.Post("/orders/cancel", h.apiCancelOrders)
			r.Post("/reset", h.apiFactoryReset)
			r.Post("/fts/{serial}/charge", h.apiCharge)
			r.Post("/fts/{serial}/pair", h.apiPairFts)
			r.Post("/layout", h.apiApplyLayout)
			r.Put("/stock/{location}", h.apiSetStock)
			r.Post("/password", h.handleChangePassword)
		})
	})

	return r, hub.Close
}
