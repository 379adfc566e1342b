package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/events-aggregator/internal/repo"
	"github.com/angelmondragon/events-aggregator/pkg/db/models"
)

// listQuery filters and pages the event listing.
type listQuery struct {
	DateFrom *time.Time
	Offset   int
	Limit    int
}

// Repository reads the replicated events.
type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// FindByID loads the event with its place. Returns gorm.ErrRecordNotFound
// when absent.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	var event models.Event
	if err := r.DB(ctx).Preload("Place").Where("id = ?", id).Take(&event).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *Repository) List(ctx context.Context, q listQuery) ([]models.Event, int64, error) {
	base := func() *gorm.DB {
		query := r.DB(ctx).Model(&models.Event{}).
			Joins("JOIN places ON places.id = events.place_id")
		if q.DateFrom != nil {
			query = query.Where("events.event_time >= ?", *q.DateFrom)
		}
		return query
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.Event
	err := base().
		Preload("Place").
		Order("events.event_time ASC").
		Order("events.id ASC").
		Scopes(repo.Page(q.Offset, q.Limit)).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}
