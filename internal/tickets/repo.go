package tickets

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/events-aggregator/internal/repo"
	"github.com/angelmondragon/events-aggregator/pkg/db/models"
)

type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

func (r *Repository) Create(tx *gorm.DB, ticket *models.Ticket) error {
	return tx.Create(ticket).Error
}

// FindByProviderTicketID returns nil when no ticket matches.
func (r *Repository) FindByProviderTicketID(ctx context.Context, providerTicketID uuid.UUID) (*models.Ticket, error) {
	var ticket models.Ticket
	err := r.DB(ctx).Where("provider_ticket_id = ?", providerTicketID).Take(&ticket).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.DB(ctx).Where("id = ?", id).Delete(&models.Ticket{}).Error
}
