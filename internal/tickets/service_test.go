package tickets

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/events-aggregator/internal/events"
	"github.com/angelmondragon/events-aggregator/internal/idempotency"
	"github.com/angelmondragon/events-aggregator/pkg/db"
	"github.com/angelmondragon/events-aggregator/pkg/db/dbtest"
	"github.com/angelmondragon/events-aggregator/pkg/db/models"
	"github.com/angelmondragon/events-aggregator/pkg/enums"
	pkgerrors "github.com/angelmondragon/events-aggregator/pkg/errors"
	"github.com/angelmondragon/events-aggregator/pkg/outbox"
	"github.com/angelmondragon/events-aggregator/pkg/outbox/payloads"
	"github.com/angelmondragon/events-aggregator/pkg/upstream"
)

var testNow = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

type fakeProvider struct {
	mu          sync.Mutex
	seats       []string
	seatsErr    error
	registerErr error
	ticketIDs   []uuid.UUID
	registered  []upstream.RegisterRequest
	unregisters []uuid.UUID
	onRegister  func()
}

func (f *fakeProvider) Seats(context.Context, uuid.UUID) ([]string, error) {
	return f.seats, f.seatsErr
}

func (f *fakeProvider) Register(_ context.Context, _ uuid.UUID, req upstream.RegisterRequest) (uuid.UUID, error) {
	if f.onRegister != nil {
		f.onRegister()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.registerErr != nil {
		return uuid.Nil, f.registerErr
	}
	id := uuid.New()
	f.ticketIDs = append(f.ticketIDs, id)
	f.registered = append(f.registered, req)
	return id, nil
}

func (f *fakeProvider) Unregister(_ context.Context, _ uuid.UUID, providerTicketID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unregisters = append(f.unregisters, providerTicketID)
	return nil
}

type fakeInvalidator struct {
	invalidated []uuid.UUID
}

func (f *fakeInvalidator) Invalidate(_ context.Context, eventID uuid.UUID) {
	f.invalidated = append(f.invalidated, eventID)
}

type fixture struct {
	client   *db.Client
	svc      Service
	provider *fakeProvider
	seats    *fakeInvalidator
	event    models.Event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client := dbtest.New(t)
	event := seedEvent(t, client, enums.EventStatusPublished, testNow.Add(24*time.Hour))

	provider := &fakeProvider{seats: []string{"A1", "A2"}}
	eventsSvc, err := events.NewService(events.NewRepository(client.DB()), provider)
	require.NoError(t, err)
	invalidator := &fakeInvalidator{}

	svc, err := NewService(ServiceParams{
		Tx:       client,
		Repo:     NewRepository(client.DB()),
		Events:   eventsSvc,
		Guard:    idempotency.NewGuard(idempotency.NewRepository(client.DB())),
		Provider: provider,
		Outbox:   outbox.NewService(outbox.NewRepository(client.DB()), nil),
		Seats:    invalidator,
		Now:      func() time.Time { return testNow },
	})
	require.NoError(t, err)
	return &fixture{client: client, svc: svc, provider: provider, seats: invalidator, event: event}
}

func seedEvent(t *testing.T, client *db.Client, status enums.EventStatus, deadline time.Time) models.Event {
	t.Helper()
	place := models.Place{ID: uuid.New(), Name: "Hall", City: "Moscow", Address: "Main st. 1"}
	require.NoError(t, client.DB().Create(&place).Error)
	event := models.Event{
		ID:                   uuid.New(),
		Name:                 "Jazz night",
		PlaceID:              place.ID,
		EventTime:            deadline.Add(48 * time.Hour),
		RegistrationDeadline: deadline,
		Status:               status,
	}
	require.NoError(t, client.DB().Create(&event).Error)
	return event
}

func (f *fixture) input(key string) RegisterInput {
	return RegisterInput{
		EventID:        f.event.ID,
		FirstName:      "Ada",
		LastName:       "Lovelace",
		Email:          "ada@example.com",
		Seat:           "A1",
		IdempotencyKey: key,
	}
}

func count(t *testing.T, client *db.Client, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, client.DB().Model(model).Count(&n).Error)
	return n
}

func TestRegisterWritesTicketOutboxAndKey(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Register(context.Background(), f.input("key-1"))
	require.NoError(t, err)
	require.Len(t, f.provider.ticketIDs, 1)
	assert.Equal(t, f.provider.ticketIDs[0], res.TicketID)
	assert.False(t, res.Replayed)

	var ticket models.Ticket
	require.NoError(t, f.client.DB().Take(&ticket).Error)
	assert.Equal(t, res.TicketID, ticket.ProviderTicketID)
	assert.Equal(t, "A1", ticket.Seat)

	var record models.OutboxRecord
	require.NoError(t, f.client.DB().Take(&record).Error)
	assert.Equal(t, enums.EventTicketPurchased, record.EventType)
	assert.False(t, record.IsSent)
	env, err := outbox.DecodeEnvelope(record.Payload)
	require.NoError(t, err)
	decoded, err := outbox.DefaultRegistry().Decode(record.EventType, env.Version, env.Data)
	require.NoError(t, err)
	evt := decoded.(payloads.TicketPurchasedEvent)
	assert.Equal(t, "ticket-"+res.TicketID.String(), evt.IdempotencyKey)
	assert.Equal(t, res.TicketID.String(), evt.ReferenceID)
	assert.Equal(t, "You have successfully registered for the event - Jazz night", evt.Message)

	var key models.IdempotencyRecord
	require.NoError(t, f.client.DB().Take(&key).Error)
	assert.Equal(t, "key-1", key.IdempotencyKey)
	assert.Equal(t, res.TicketID, key.TicketID)

	assert.Equal(t, []uuid.UUID{f.event.ID}, f.seats.invalidated)
}

func TestRegisterWithoutKeySkipsIdempotencyRecord(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Register(context.Background(), f.input(""))
	require.NoError(t, err)
	assert.EqualValues(t, 1, count(t, f.client, &models.Ticket{}))
	assert.EqualValues(t, 0, count(t, f.client, &models.IdempotencyRecord{}))
}

func TestRegisterReplayIsIdempotent(t *testing.T) {
	f := newFixture(t)
	first, err := f.svc.Register(context.Background(), f.input("key-1"))
	require.NoError(t, err)

	in := f.input("key-1")
	in.Email = " ADA@example.com "
	second, err := f.svc.Register(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.TicketID, second.TicketID)

	assert.Len(t, f.provider.ticketIDs, 1, "a replay must not call the provider")
	assert.EqualValues(t, 1, count(t, f.client, &models.Ticket{}))
	assert.EqualValues(t, 1, count(t, f.client, &models.OutboxRecord{}))
	assert.EqualValues(t, 1, count(t, f.client, &models.IdempotencyRecord{}))
}

func TestRegisterKeyReuseWithDifferentRequestConflicts(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Register(context.Background(), f.input("key-1"))
	require.NoError(t, err)

	in := f.input("key-1")
	in.Seat = "A2"
	_, err = f.svc.Register(context.Background(), in)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeIdempotency))
	assert.Len(t, f.provider.ticketIDs, 1)
	assert.EqualValues(t, 1, count(t, f.client, &models.Ticket{}))
}

func TestRegisterEligibility(t *testing.T) {
	cases := []struct {
		name     string
		status   enums.EventStatus
		deadline time.Time
		code     pkgerrors.Code
		message  string
	}{
		{"finished", enums.EventStatusFinished, testNow.Add(time.Hour), pkgerrors.CodeEventNotAvailable, "Event has finished"},
		{"not published", enums.EventStatusNew, testNow.Add(time.Hour), pkgerrors.CodeEventNotAvailable, "Event is not published for registration"},
		{"deadline passed", enums.EventStatusPublished, testNow.Add(-time.Minute), pkgerrors.CodeRegistrationClosed, "Registration deadline has passed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			event := seedEvent(t, f.client, tc.status, tc.deadline)
			in := f.input("")
			in.EventID = event.ID

			_, err := f.svc.Register(context.Background(), in)
			require.Error(t, err)
			typed := pkgerrors.As(err)
			require.NotNil(t, typed)
			assert.Equal(t, tc.code, typed.Code())
			assert.Equal(t, tc.message, typed.Message())
			assert.Empty(t, f.provider.ticketIDs)
		})
	}
}

func TestRegisterUnknownEvent(t *testing.T) {
	f := newFixture(t)
	in := f.input("")
	in.EventID = uuid.New()
	_, err := f.svc.Register(context.Background(), in)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestRegisterSeatUnavailable(t *testing.T) {
	f := newFixture(t)
	in := f.input("")
	in.Seat = "Z9"
	_, err := f.svc.Register(context.Background(), in)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeSeatUnavailable))
	assert.Empty(t, f.provider.ticketIDs)
}

func TestRegisterUpstreamFailures(t *testing.T) {
	f := newFixture(t)
	f.provider.seatsErr = pkgerrors.New(pkgerrors.CodeDependency, "events provider unavailable")
	_, err := f.svc.Register(context.Background(), f.input(""))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	assert.Contains(t, pkgerrors.As(err).Message(), "upstream unavailable")

	f.provider.seatsErr = nil
	f.provider.registerErr = pkgerrors.New(pkgerrors.CodeUpstreamRejected, "seat already taken").WithStatus(409)
	_, err = f.svc.Register(context.Background(), f.input(""))
	require.Error(t, err)
	typed := pkgerrors.As(err)
	assert.Equal(t, pkgerrors.CodeUpstreamRejected, typed.Code())
	assert.Equal(t, 409, typed.HTTPStatus())
	assert.EqualValues(t, 0, count(t, f.client, &models.Ticket{}))
	assert.EqualValues(t, 0, count(t, f.client, &models.OutboxRecord{}))
}

func TestRegisterConcurrentDuplicateResolvesToWinner(t *testing.T) {
	f := newFixture(t)
	in := f.input("key-race")
	winner := uuid.New()
	fp := idempotency.Fingerprint(in.fields())

	// The competing request commits the key while this one is talking to
	// the provider.
	f.provider.onRegister = func() {
		require.NoError(t, f.client.DB().Create(&models.IdempotencyRecord{
			ID: uuid.New(), IdempotencyKey: "key-race", RequestHash: fp, TicketID: winner,
		}).Error)
	}

	res, err := f.svc.Register(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, res.Replayed)
	assert.Equal(t, winner, res.TicketID)
	assert.EqualValues(t, 0, count(t, f.client, &models.Ticket{}), "the losing transaction rolls back entirely")
	assert.EqualValues(t, 0, count(t, f.client, &models.OutboxRecord{}))
}

func TestRegisterConcurrentConflictingKey(t *testing.T) {
	f := newFixture(t)
	f.provider.onRegister = func() {
		require.NoError(t, f.client.DB().Create(&models.IdempotencyRecord{
			ID: uuid.New(), IdempotencyKey: "key-race", RequestHash: "other", TicketID: uuid.New(),
		}).Error)
	}

	_, err := f.svc.Register(context.Background(), f.input("key-race"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeIdempotency))
}

func TestRegisterRejectsOversizedKey(t *testing.T) {
	f := newFixture(t)
	long := make([]byte, idempotency.MaxKeyLength+1)
	for i := range long {
		long[i] = 'k'
	}
	_, err := f.svc.Register(context.Background(), f.input(string(long)))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestCancelUnregistersAndDeletes(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Register(context.Background(), f.input(""))
	require.NoError(t, err)

	require.NoError(t, f.svc.Cancel(context.Background(), res.TicketID))
	assert.Equal(t, []uuid.UUID{res.TicketID}, f.provider.unregisters)
	assert.EqualValues(t, 0, count(t, f.client, &models.Ticket{}))
	assert.Len(t, f.seats.invalidated, 2)

	err = f.svc.Cancel(context.Background(), res.TicketID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}
