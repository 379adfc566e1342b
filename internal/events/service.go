package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/events-aggregator/pkg/db/models"
	"github.com/angelmondragon/events-aggregator/pkg/enums"
	pkgerrors "github.com/angelmondragon/events-aggregator/pkg/errors"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type seatSource interface {
	Seats(ctx context.Context, eventID uuid.UUID) ([]string, error)
}

// Service exposes the local event replica.
type Service interface {
	List(ctx context.Context, params ListParams) (*ListResult, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Event, error)
	Seats(ctx context.Context, id uuid.UUID) ([]string, error)
}

// ListParams are 1-based page parameters with an optional lower bound on
// event time.
type ListParams struct {
	DateFrom *time.Time
	Page     int
	PageSize int
}

type ListResult struct {
	Items    []models.Event
	Total    int64
	Page     int
	PageSize int
}

// HasNext reports whether another page follows.
func (r *ListResult) HasNext() bool {
	return int64(r.Page*r.PageSize) < r.Total
}

// HasPrevious reports whether a page precedes.
func (r *ListResult) HasPrevious() bool {
	return r.Page > 1
}

type service struct {
	repo  *Repository
	seats seatSource
}

// NewService wires the events read model. seats is normally the seat cache.
func NewService(repo *Repository, seats seatSource) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "events repository required")
	}
	if seats == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "seat source required")
	}
	return &service{repo: repo, seats: seats}, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.Page == 0 {
		params.Page = 1
	}
	if params.PageSize == 0 {
		params.PageSize = DefaultPageSize
	}
	if params.Page < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "page must be at least 1")
	}
	if params.PageSize < 1 || params.PageSize > MaxPageSize {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "page_size must be between 1 and 100")
	}

	rows, total, err := s.repo.List(ctx, listQuery{
		DateFrom: params.DateFrom,
		Offset:   (params.Page - 1) * params.PageSize,
		Limit:    params.PageSize,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list events")
	}
	return &ListResult{
		Items:    rows,
		Total:    total,
		Page:     params.Page,
		PageSize: params.PageSize,
	}, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	event, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "event not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load event")
	}
	return event, nil
}

// Seats returns the provider's available seats for a published event.
func (s *service) Seats(ctx context.Context, id uuid.UUID) ([]string, error) {
	event, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := CheckPublished(event); err != nil {
		return nil, err
	}
	seats, err := s.seats.Seats(ctx, id)
	if err != nil {
		return nil, UpstreamError(err)
	}
	return seats, nil
}

// CheckPublished rejects events that are not open for registration.
func CheckPublished(event *models.Event) error {
	switch event.Status {
	case enums.EventStatusPublished:
		return nil
	case enums.EventStatusFinished:
		return pkgerrors.New(pkgerrors.CodeEventNotAvailable, "Event has finished")
	default:
		return pkgerrors.New(pkgerrors.CodeEventNotAvailable, "Event is not published for registration")
	}
}

// UpstreamError maps provider failures for callers. Unavailability gets a
// registration-specific message; rejections pass through unchanged.
func UpstreamError(err error) error {
	if pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "event is not available for registration (upstream unavailable)")
	}
	return err
}
