package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	mW "github.com/smartpark/backend/internal/middleware"
)

// RouterConfig carries everything the HTTP surface needs.
type RouterConfig struct {
	Gate     *GateHandler
	Admin    *AdminHandler
	Auth     *mW.Authenticator
	Gatherer prometheus.Gatherer
	Timeout  time.Duration
}

func NewRouter(cfg RouterConfig) http.Handler {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(mW.RequestLogger)
	r.Use(chimw.Recoverer)
	r.Use(mW.SecurityHeaders)
	r.Use(chimw.Timeout(timeout))

	// Dashboards poll status from the browser.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/gate/entry", cfg.Gate.Entry)
		r.Post("/gate/exit", cfg.Gate.Exit)
		r.Get("/parking/status", cfg.Gate.Status)
		r.Post("/slots/{slotId}/sensor", cfg.Gate.SensorReport)

		r.Route("/admin", func(r chi.Router) {
			r.Use(cfg.Auth.AuthMiddleware)
			r.Use(mW.AdminOnly)

			r.Post("/wallets/credit", cfg.Admin.CreditWallet)
			r.Get("/wallets/{rfid}/ledger", cfg.Admin.LedgerHistory)
			r.Get("/wallets/{rfid}/reconcile", cfg.Admin.Reconcile)

			r.Post("/tags", cfg.Admin.RegisterTag)
			r.Put("/tags/{rfid}/deactivate", cfg.Admin.DeactivateTag)
			r.Put("/tags/{rfid}/reinstate", cfg.Admin.ReinstateTag)
		})
	})

	return r
}
