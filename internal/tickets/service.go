package tickets

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/events-aggregator/internal/events"
	"github.com/angelmondragon/events-aggregator/internal/idempotency"
	"github.com/angelmondragon/events-aggregator/pkg/db/models"
	"github.com/angelmondragon/events-aggregator/pkg/enums"
	pkgerrors "github.com/angelmondragon/events-aggregator/pkg/errors"
	"github.com/angelmondragon/events-aggregator/pkg/logger"
	"github.com/angelmondragon/events-aggregator/pkg/outbox"
	"github.com/angelmondragon/events-aggregator/pkg/outbox/payloads"
	"github.com/angelmondragon/events-aggregator/pkg/upstream"
)

const notificationTemplate = "You have successfully registered for the event - %s"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventLoader interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Event, error)
}

// Provider is the events provider surface registration needs.
type Provider interface {
	Seats(ctx context.Context, eventID uuid.UUID) ([]string, error)
	Register(ctx context.Context, eventID uuid.UUID, req upstream.RegisterRequest) (uuid.UUID, error)
	Unregister(ctx context.Context, eventID, providerTicketID uuid.UUID) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) (uuid.UUID, error)
}

type seatInvalidator interface {
	Invalidate(ctx context.Context, eventID uuid.UUID)
}

// Service registers and cancels tickets.
type Service interface {
	Register(ctx context.Context, input RegisterInput) (*RegisterResult, error)
	Cancel(ctx context.Context, providerTicketID uuid.UUID) error
}

type RegisterInput struct {
	EventID        uuid.UUID
	FirstName      string
	LastName       string
	Email          string
	Seat           string
	IdempotencyKey string
}

func (in RegisterInput) fields() idempotency.RequestFields {
	return idempotency.RequestFields{
		EventID:   in.EventID.String(),
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Email:     in.Email,
		Seat:      in.Seat,
	}
}

// RegisterResult carries the provider ticket id handed back to clients.
type RegisterResult struct {
	TicketID uuid.UUID
	Replayed bool
}

type ServiceParams struct {
	Tx       txRunner
	Repo     *Repository
	Events   eventLoader
	Guard    *idempotency.Guard
	Provider Provider
	Outbox   outboxPublisher
	Seats    seatInvalidator
	Logger   *logger.Logger
	Now      func() time.Time
}

type service struct {
	tx       txRunner
	repo     *Repository
	events   eventLoader
	guard    *idempotency.Guard
	provider Provider
	outbox   outboxPublisher
	seats    seatInvalidator
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(p ServiceParams) (Service, error) {
	switch {
	case p.Tx == nil:
		return nil, fmt.Errorf("tx runner required")
	case p.Repo == nil:
		return nil, fmt.Errorf("tickets repository required")
	case p.Events == nil:
		return nil, fmt.Errorf("event loader required")
	case p.Guard == nil:
		return nil, fmt.Errorf("idempotency guard required")
	case p.Provider == nil:
		return nil, fmt.Errorf("events provider required")
	case p.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	}
	if p.Logger == nil {
		p.Logger = logger.Nop()
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	return &service{
		tx:       p.Tx,
		repo:     p.Repo,
		events:   p.Events,
		guard:    p.Guard,
		provider: p.Provider,
		outbox:   p.Outbox,
		seats:    p.Seats,
		logg:     p.Logger,
		now:      p.Now,
	}, nil
}

func (s *service) Register(ctx context.Context, input RegisterInput) (*RegisterResult, error) {
	input = normalizeInput(input)
	if input.EventID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event id required")
	}
	if input.Seat == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seat required")
	}
	key, err := idempotency.NormalizeKey(input.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	input.IdempotencyKey = key
	ctx = s.logg.WithEventID(ctx, input.EventID.String())

	var fingerprint string
	if key != "" {
		fingerprint = idempotency.Fingerprint(input.fields())
		decision, err := s.guard.CheckAndReserve(ctx, key, fingerprint)
		if err != nil {
			return nil, err
		}
		if decision.Outcome == idempotency.OutcomeReplay {
			s.logg.Info(s.logg.WithField(ctx, "ticket_id", decision.TicketID.String()), "idempotent registration replayed")
			return &RegisterResult{TicketID: decision.TicketID, Replayed: true}, nil
		}
	}

	event, err := s.events.Get(ctx, input.EventID)
	if err != nil {
		return nil, err
	}
	if err := s.checkEligible(event); err != nil {
		return nil, err
	}

	available, err := s.provider.Seats(ctx, event.ID)
	if err != nil {
		return nil, events.UpstreamError(err)
	}
	if !slices.Contains(available, input.Seat) {
		return nil, pkgerrors.New(pkgerrors.CodeSeatUnavailable, "Seat is not available").
			WithDetails(map[string]any{"seat": input.Seat})
	}

	// Past this call the provider holds a ticket we cannot take back
	// automatically.
	providerTicketID, err := s.provider.Register(ctx, event.ID, upstream.RegisterRequest{
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Email:     input.Email,
		Seat:      input.Seat,
	})
	if err != nil {
		return nil, events.UpstreamError(err)
	}
	ctx = s.logg.WithField(ctx, "provider_ticket_id", providerTicketID.String())

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ticket := &models.Ticket{
			ID:               uuid.New(),
			EventID:          event.ID,
			ProviderTicketID: providerTicketID,
			FirstName:        input.FirstName,
			LastName:         input.LastName,
			Email:            input.Email,
			Seat:             input.Seat,
		}
		if err := s.repo.Create(tx, ticket); err != nil {
			return fmt.Errorf("insert ticket: %w", err)
		}

		dedupKey := "ticket-" + providerTicketID.String()
		if _, err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType: enums.EventTicketPurchased,
			Version:   outbox.TicketPurchasedVersion,
			Data: payloads.TicketPurchasedEvent{
				TicketID:         ticket.ID,
				ProviderTicketID: providerTicketID,
				EventID:          event.ID,
				Message:          fmt.Sprintf(notificationTemplate, event.Name),
				ReferenceID:      providerTicketID.String(),
				IdempotencyKey:   dedupKey,
			},
		}); err != nil {
			return fmt.Errorf("emit ticket purchased: %w", err)
		}

		if key != "" {
			if err := s.guard.Save(tx, key, fingerprint, providerTicketID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if key != "" && idempotency.IsKeyViolation(err) {
			return s.resolveRace(ctx, key, fingerprint, providerTicketID)
		}
		s.logg.Error(ctx, "registration not persisted; provider ticket needs manual cancellation", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist registration")
	}

	if s.seats != nil {
		s.seats.Invalidate(ctx, event.ID)
	}
	s.logg.Info(ctx, "ticket registered")
	return &RegisterResult{TicketID: providerTicketID}, nil
}

// resolveRace handles a concurrent request that committed the same key
// first. The provider ticket created by this request is orphaned either way.
func (s *service) resolveRace(ctx context.Context, key, fingerprint string, orphan uuid.UUID) (*RegisterResult, error) {
	s.logg.Warn(s.logg.WithField(ctx, "orphaned_provider_ticket_id", orphan.String()),
		"concurrent registration won the idempotency key; provider ticket needs manual cancellation")

	decision, err := s.guard.CheckAndReserve(ctx, key, fingerprint)
	if err != nil {
		return nil, err
	}
	if decision.Outcome != idempotency.OutcomeReplay {
		return nil, idempotency.ConflictError(key)
	}
	return &RegisterResult{TicketID: decision.TicketID, Replayed: true}, nil
}

func (s *service) checkEligible(event *models.Event) error {
	if err := events.CheckPublished(event); err != nil {
		return err
	}
	if event.RegistrationDeadline.UTC().Before(s.now().UTC()) {
		return pkgerrors.New(pkgerrors.CodeRegistrationClosed, "Registration deadline has passed")
	}
	return nil
}

// Cancel unregisters the ticket with the provider and removes the local row.
func (s *service) Cancel(ctx context.Context, providerTicketID uuid.UUID) error {
	ticket, err := s.repo.FindByProviderTicketID(ctx, providerTicketID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load ticket")
	}
	if ticket == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "ticket not found")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"event_id":           ticket.EventID.String(),
		"provider_ticket_id": providerTicketID.String(),
	})

	if err := s.provider.Unregister(ctx, ticket.EventID, providerTicketID); err != nil {
		return events.UpstreamError(err)
	}
	if err := s.repo.Delete(ctx, ticket.ID); err != nil {
		s.logg.Error(ctx, "ticket unregistered upstream but local row not deleted", err)
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete ticket")
	}

	if s.seats != nil {
		s.seats.Invalidate(ctx, ticket.EventID)
	}
	s.logg.Info(ctx, "ticket cancelled")
	return nil
}

// normalizeInput trims the free-text fields before they reach the provider.
func normalizeInput(in RegisterInput) RegisterInput {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = strings.TrimSpace(in.Email)
	in.Seat = strings.TrimSpace(in.Seat)
	return in
}
