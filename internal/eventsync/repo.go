package eventsync

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/events-aggregator/internal/repo"
	"github.com/angelmondragon/events-aggregator/pkg/db"
	"github.com/angelmondragon/events-aggregator/pkg/db/models"
	"github.com/angelmondragon/events-aggregator/pkg/enums"
)

var (
	placeUpdateColumns = []string{"name", "city", "address", "seats_pattern", "updated_at"}
	eventUpdateColumns = []string{
		"name", "place_id", "event_time", "registration_deadline", "status",
		"number_of_visitors", "changed_at", "status_changed_at", "updated_at",
	}
)

// Repository persists the watermark and the replicated places and events.
type Repository struct {
	repo.Base
}

func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(conn)}
}

// EnsureWatermark creates the singleton row when missing.
func (r *Repository) EnsureWatermark(ctx context.Context) error {
	return db.EnsureWatermark(r.DB(ctx))
}

func (r *Repository) GetWatermark(ctx context.Context) (models.SyncWatermark, error) {
	var row models.SyncWatermark
	err := r.DB(ctx).Where("id = ?", models.SyncWatermarkID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.SyncWatermark{}, errors.New("sync watermark row is missing")
	}
	return row, err
}

// Claim moves the watermark to running for owner unless a run is already
// in progress. The update commits on its own so other instances observe it.
func (r *Repository) Claim(ctx context.Context, owner string, now time.Time) (bool, error) {
	res := r.DB(ctx).Model(&models.SyncWatermark{}).
		Where("id = ? AND status <> ?", models.SyncWatermarkID, enums.SyncStatusRunning).
		Updates(map[string]any{
			"status":     enums.SyncStatusRunning,
			"claimed_by": owner,
			"last_error": nil,
			"updated_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkSuccess records a finished run. Only the owner of the claim may
// complete it.
func (r *Repository) MarkSuccess(ctx context.Context, owner, cursor string, now time.Time) error {
	res := r.DB(ctx).Model(&models.SyncWatermark{}).
		Where("id = ? AND status = ? AND claimed_by = ?", models.SyncWatermarkID, enums.SyncStatusRunning, owner).
		Updates(map[string]any{
			"status":         enums.SyncStatusSuccess,
			"last_cursor":    cursor,
			"last_sync_time": now,
			"claimed_by":     nil,
			"last_error":     nil,
			"updated_at":     now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errors.New("sync claim lost before completion")
	}
	return nil
}

// MarkError records a failed run. The cursor is left untouched.
func (r *Repository) MarkError(ctx context.Context, owner, message string, now time.Time) error {
	message = db.TruncateText(message, db.LastErrorMaxRunes)
	return r.DB(ctx).Model(&models.SyncWatermark{}).
		Where("id = ? AND status = ? AND claimed_by = ?", models.SyncWatermarkID, enums.SyncStatusRunning, owner).
		Updates(map[string]any{
			"status":     enums.SyncStatusError,
			"claimed_by": nil,
			"last_error": message,
			"updated_at": now,
		}).Error
}

// ResetStale returns a running watermark to idle. Only called at startup,
// before this process could own a run.
func (r *Repository) ResetStale(ctx context.Context, now time.Time) (int64, error) {
	res := r.DB(ctx).Model(&models.SyncWatermark{}).
		Where("id = ? AND status = ?", models.SyncWatermarkID, enums.SyncStatusRunning).
		Updates(map[string]any{
			"status":     enums.SyncStatusIdle,
			"claimed_by": nil,
			"updated_at": now,
		})
	return res.RowsAffected, res.Error
}

// UpsertPlace overwrites the place by id.
func (r *Repository) UpsertPlace(tx *gorm.DB, place *models.Place) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(placeUpdateColumns),
	}).Create(place).Error
}

// UpsertEvent overwrites the event by id.
func (r *Repository) UpsertEvent(tx *gorm.DB, event *models.Event) error {
	return tx.Omit(clause.Associations).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(eventUpdateColumns),
	}).Create(event).Error
}

// Begin opens a batch transaction.
func (r *Repository) Begin(ctx context.Context) (*gorm.DB, error) {
	tx := r.DB(ctx).Begin()
	return tx, tx.Error
}
