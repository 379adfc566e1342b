package models

import (
	"time"

	"github.com/angelmondragon/events-aggregator/pkg/enums"
)

// SyncWatermarkID is the primary key of the singleton watermark row.
const SyncWatermarkID = 1

// SyncWatermark tracks the last successful sync cursor and the state of the
// current run.
type SyncWatermark struct {
	ID           int              `gorm:"column:id;primaryKey;autoIncrement:false"`
	Status       enums.SyncStatus `gorm:"column:status;not null;default:idle"`
	LastCursor   *string          `gorm:"column:last_cursor"`
	LastSyncTime *time.Time       `gorm:"column:last_sync_time"`
	ClaimedBy    *string          `gorm:"column:claimed_by"`
	LastError    *string          `gorm:"column:last_error"`
	UpdatedAt    time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (SyncWatermark) TableName() string { return "sync_watermarks" }
