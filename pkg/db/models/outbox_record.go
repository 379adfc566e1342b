package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/angelmondragon/events-aggregator/pkg/enums"
)

// OutboxRecord is a pending side effect written in the same transaction as
// the state change that produced it. Rows are never deleted; a row whose
// attempts reached the configured maximum is dead-lettered in place.
type OutboxRecord struct {
	ID        uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	EventType enums.OutboxEventType `gorm:"column:event_type;not null"`
	Payload   datatypes.JSON        `gorm:"column:payload;not null"`
	IsSent    bool                  `gorm:"column:is_sent;not null;default:false"`
	Attempts  int                   `gorm:"column:attempts;not null;default:0"`
	LastError *string               `gorm:"column:last_error"`
	CreatedAt time.Time             `gorm:"column:created_at;autoCreateTime"`
	SentAt    *time.Time            `gorm:"column:sent_at"`
}

func (OutboxRecord) TableName() string { return "outbox_records" }
