package models

import (
	"time"

	"github.com/google/uuid"
)

// Place is the venue an event happens at, replicated from the events provider.
type Place struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name         string    `gorm:"column:name;not null"`
	City         string    `gorm:"column:city;not null"`
	Address      string    `gorm:"column:address;not null"`
	SeatsPattern *string   `gorm:"column:seats_pattern"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Place) TableName() string { return "places" }
