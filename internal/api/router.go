package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/notifyhub/delivery-queue/internal/api/handler"
	apimw "github.com/notifyhub/delivery-queue/internal/api/middleware"
	"github.com/notifyhub/delivery-queue/internal/events"
	"github.com/notifyhub/delivery-queue/internal/service"
)

// NewRouter wires the chi router, attaches all middleware, and registers
// every route. It is the single source of truth for the HTTP surface area.
func NewRouter(
	svc *service.QueueService,
	adapter *events.Adapter,
	reg prometheus.Gatherer,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// --- global middleware (applied to every route) ---
	r.Use(chimw.Recoverer)          // recover panics, return 500
	r.Use(chimw.RealIP)             // trust X-Forwarded-For / X-Real-IP
	r.Use(chimw.RequestSize(1<<20)) // 1 MB max request body
	r.Use(apimw.CorrelationID)      // X-Correlation-ID inject / echo
	r.Use(apimw.RequestLogger(logger))

	// --- handler instances ---
	nh := handler.NewNotificationHandler(svc, logger)
	eh := handler.NewEventHandler(adapter, logger)
	ah := handler.NewAdminHandler(svc, logger)
	hh := handler.NewHealthHandler(svc)

	// --- routes ---
	r.Get("/health", hh.Health)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/notifications", nh.Create)
		r.Post("/events", eh.Submit)

		r.Route("/admin/notifications", func(r chi.Router) {
			// /queue/status and /queue/process must be registered before
			// /queue/{id} so chi does not treat them as ids.
			r.Get("/queue/status", ah.Status)
			r.Post("/queue/process", ah.Process)
			r.Get("/queue", ah.ListQueued)
			r.Get("/queue/{id}", ah.Get)
			r.Delete("/queue/{id}", ah.Delete)
			r.Get("/failed", ah.ListFailed)
			r.Post("/retry-all", ah.RetryAll)
			r.Post("/retry/{id}", ah.Retry)
			r.Post("/test", ah.Test)
		})
	})

	return r
}
