package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/events-aggregator/pkg/enums"
)

// Event is the local replica of a provider event. Rows are only written by
// the sync engine.
type Event struct {
	ID                   uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	Name                 string            `gorm:"column:name;not null"`
	PlaceID              uuid.UUID         `gorm:"column:place_id;type:uuid;not null;index"`
	Place                *Place            `gorm:"foreignKey:PlaceID;references:ID"`
	EventTime            time.Time         `gorm:"column:event_time;not null;index"`
	RegistrationDeadline time.Time         `gorm:"column:registration_deadline;not null"`
	Status               enums.EventStatus `gorm:"column:status;not null"`
	NumberOfVisitors     int               `gorm:"column:number_of_visitors;not null;default:0"`
	ChangedAt            *time.Time        `gorm:"column:changed_at"`
	StatusChangedAt      *time.Time        `gorm:"column:status_changed_at"`
	CreatedAt            time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (Event) TableName() string { return "events" }
