package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/events-aggregator/pkg/db"
	"github.com/angelmondragon/events-aggregator/pkg/db/models"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(tx *gorm.DB, row models.OutboxRecord) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Create(&row).Error
}

// FetchPending returns up to limit unsent records that still have attempts
// left, oldest first.
func (r *Repository) FetchPending(ctx context.Context, limit, maxAttempts int) ([]models.OutboxRecord, error) {
	var rows []models.OutboxRecord
	err := r.db.WithContext(ctx).
		Where("is_sent = ? AND attempts < ?", false, maxAttempts).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// MarkSent flags the record delivered. Records already sent are left alone.
func (r *Repository) MarkSent(tx *gorm.DB, id uuid.UUID, sentAt time.Time) (bool, error) {
	res := tx.Model(&models.OutboxRecord{}).
		Where("id = ? AND is_sent = ?", id, false).
		Updates(map[string]any{
			"is_sent": true,
			"sent_at": sentAt,
		})
	return res.RowsAffected == 1, res.Error
}

// IncrementAttempts bumps attempts and stores the failure, never past
// maxAttempts. Returns false when the guard rejected the update.
func (r *Repository) IncrementAttempts(tx *gorm.DB, id uuid.UUID, maxAttempts int, cause error) (bool, error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	msg = db.TruncateText(msg, db.LastErrorMaxRunes)
	res := tx.Model(&models.OutboxRecord{}).
		Where("id = ? AND is_sent = ? AND attempts < ?", id, false, maxAttempts).
		Updates(map[string]any{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": msg,
		})
	return res.RowsAffected == 1, res.Error
}

// Get loads one record.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (models.OutboxRecord, error) {
	var row models.OutboxRecord
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	return row, err
}

// Stats summarises the outbox for the ops endpoint and the backlog gauge.
type Stats struct {
	Pending              int64      `json:"pending"`
	Sent                 int64      `json:"sent"`
	DeadLettered         int64      `json:"dead_lettered"`
	OldestPendingAt      *time.Time `json:"oldest_pending_at,omitempty"`
	OldestPendingAttempt int        `json:"oldest_pending_attempts"`
}

func (r *Repository) Stats(ctx context.Context, maxAttempts int) (Stats, error) {
	var stats Stats
	records := func() *gorm.DB {
		return r.db.WithContext(ctx).Model(&models.OutboxRecord{})
	}

	if err := records().Where("is_sent = ? AND attempts < ?", false, maxAttempts).Count(&stats.Pending).Error; err != nil {
		return Stats{}, err
	}
	if err := records().Where("is_sent = ?", true).Count(&stats.Sent).Error; err != nil {
		return Stats{}, err
	}
	if err := records().Where("is_sent = ? AND attempts >= ?", false, maxAttempts).Count(&stats.DeadLettered).Error; err != nil {
		return Stats{}, err
	}

	if stats.Pending > 0 {
		var oldest models.OutboxRecord
		err := r.db.WithContext(ctx).
			Where("is_sent = ? AND attempts < ?", false, maxAttempts).
			Order("created_at ASC").
			Order("id ASC").
			Take(&oldest).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return Stats{}, err
		}
		if err == nil {
			created := oldest.CreatedAt
			stats.OldestPendingAt = &created
			stats.OldestPendingAttempt = oldest.Attempts
		}
	}
	return stats, nil
}
