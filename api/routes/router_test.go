package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/events-aggregator/internal/events"
	"github.com/angelmondragon/events-aggregator/internal/eventsync"
	"github.com/angelmondragon/events-aggregator/internal/tickets"
	"github.com/angelmondragon/events-aggregator/pkg/config"
	"github.com/angelmondragon/events-aggregator/pkg/db/models"
	"github.com/angelmondragon/events-aggregator/pkg/logger"
	"github.com/angelmondragon/events-aggregator/pkg/outbox"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error { return nil }

type stubEvents struct{}

func (stubEvents) List(_ context.Context, p events.ListParams) (*events.ListResult, error) {
	return &events.ListResult{Page: p.Page, PageSize: p.PageSize}, nil
}

func (stubEvents) Get(_ context.Context, id uuid.UUID) (*models.Event, error) {
	return &models.Event{ID: id}, nil
}

func (stubEvents) Seats(context.Context, uuid.UUID) ([]string, error) {
	return []string{"A1"}, nil
}

type stubTickets struct{}

func (stubTickets) Register(context.Context, tickets.RegisterInput) (*tickets.RegisterResult, error) {
	return &tickets.RegisterResult{TicketID: uuid.New()}, nil
}

func (stubTickets) Cancel(context.Context, uuid.UUID) error { return nil }

type stubOps struct{ started int }

func (s *stubOps) Status(context.Context) (eventsync.Status, error) {
	return eventsync.Status{Status: "idle"}, nil
}

func (s *stubOps) Start(context.Context, string) { s.started++ }

func (s *stubOps) Stats(context.Context) (outbox.Stats, error) { return outbox.Stats{}, nil }

func newTestRouter(ops *stubOps) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "router_test_total"}))
	return NewRouter(Deps{
		Config:      &config.Config{App: config.AppConfig{Env: "test"}},
		Logger:      logger.Nop(),
		DB:          stubPinger{},
		Events:      stubEvents{},
		Tickets:     stubTickets{},
		SyncStatus:  ops,
		SyncTrigger: ops,
		OutboxStats: ops,
		Gatherer:    reg,
	})
}

func TestRouterServesRoutes(t *testing.T) {
	ops := &stubOps{}
	router := newTestRouter(ops)
	id := uuid.NewString()
	ticketBody := `{"event_id":"` + id + `","first_name":"A","last_name":"B","email":"a@b.co","seat":"A1"}`

	cases := []struct {
		method string
		path   string
		body   string
		want   int
	}{
		{http.MethodGet, "/health/live", "", http.StatusOK},
		{http.MethodGet, "/health/ready", "", http.StatusOK},
		{http.MethodGet, "/api/events/", "", http.StatusOK},
		{http.MethodGet, "/api/events/" + id, "", http.StatusOK},
		{http.MethodGet, "/api/events/" + id + "/seats", "", http.StatusOK},
		{http.MethodPost, "/api/tickets/", ticketBody, http.StatusCreated},
		{http.MethodDelete, "/api/tickets/" + id, "", http.StatusOK},
		{http.MethodGet, "/api/sync/status", "", http.StatusOK},
		{http.MethodPost, "/api/sync/trigger", "", http.StatusAccepted},
		{http.MethodGet, "/api/outbox/stats", "", http.StatusOK},
		{http.MethodGet, "/api/unknown", "", http.StatusNotFound},
		{http.MethodPut, "/api/tickets/", "", http.StatusMethodNotAllowed},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, tc.want, rec.Code, "%s %s", tc.method, tc.path)
	}
	assert.Equal(t, 1, ops.started)
}

func TestRouterExposesMetricsAndRequestID(t *testing.T) {
	router := newTestRouter(&stubOps{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "router_test_total")
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}
