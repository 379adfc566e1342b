package models

import (
	"time"

	"github.com/google/uuid"
)

// Ticket is a registration confirmed by the events provider.
type Ticket struct {
	ID               uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	EventID          uuid.UUID `gorm:"column:event_id;type:uuid;not null;index"`
	ProviderTicketID uuid.UUID `gorm:"column:provider_ticket_id;type:uuid;not null;uniqueIndex"`
	FirstName        string    `gorm:"column:first_name;not null"`
	LastName         string    `gorm:"column:last_name;not null"`
	Email            string    `gorm:"column:email;not null"`
	Seat             string    `gorm:"column:seat;not null"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Ticket) TableName() string { return "tickets" }
