package idempotency

import (
	"context"
	"errors"

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

// FindByKey returns the record for key, or nil when none exists.
func (r *Repository) FindByKey(ctx context.Context, key string) (*models.IdempotencyRecord, error) {
	var row models.IdempotencyRecord
	err := r.DB(ctx).Where("idempotency_key = ?", key).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *Repository) Insert(tx *gorm.DB, row *models.IdempotencyRecord) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Create(row).Error
}
