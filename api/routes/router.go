package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/events-aggregator/api/controllers"
	"github.com/angelmondragon/events-aggregator/api/middleware"
	"github.com/angelmondragon/events-aggregator/internal/events"
	"github.com/angelmondragon/events-aggregator/internal/tickets"
	"github.com/angelmondragon/events-aggregator/pkg/config"
	"github.com/angelmondragon/events-aggregator/pkg/logger"
)

// Deps carries everything the HTTP surface needs. Redis may be nil.
type Deps struct {
	Config      *config.Config
	Logger      *logger.Logger
	DB          controllers.Pinger
	Redis       controllers.Pinger
	Events      events.Service
	Tickets     tickets.Service
	SyncStatus  controllers.SyncStatusReader
	SyncTrigger controllers.SyncStarter
	OutboxStats controllers.OutboxStatsReader
	Gatherer    prometheus.Gatherer
}

func NewRouter(d Deps) http.Handler {
	logg := d.Logger
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(d.Config))
		r.Get("/ready", controllers.HealthReady(d.Config, logg, d.DB, d.Redis))
	})

	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/events", func(r chi.Router) {
			r.Get("/", controllers.ListEvents(d.Events, logg))
			r.Get("/{eventId}", controllers.GetEvent(d.Events, logg))
			r.Get("/{eventId}/seats", controllers.EventSeats(d.Events, logg))
		})
		r.Route("/tickets", func(r chi.Router) {
			r.Post("/", controllers.CreateTicket(d.Tickets, logg))
			r.Delete("/{ticketId}", controllers.DeleteTicket(d.Tickets, logg))
		})
		r.Route("/sync", func(r chi.Router) {
			r.Get("/status", controllers.SyncStatus(d.SyncStatus, logg))
			r.Post("/trigger", controllers.TriggerSync(d.SyncTrigger, logg))
		})
		r.Get("/outbox/stats", controllers.OutboxStats(d.OutboxStats, logg))
	})

	return r
}
