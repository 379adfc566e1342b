package models

import (
	"time"

	"github.com/google/uuid"
)

// IdempotencyRecord binds a client key to the fingerprint of the first
// request that used it and the ticket that request produced.
type IdempotencyRecord struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	IdempotencyKey string    `gorm:"column:idempotency_key;not null;uniqueIndex"`
	RequestHash    string    `gorm:"column:request_hash;not null"`
	TicketID       uuid.UUID `gorm:"column:ticket_id;type:uuid;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (IdempotencyRecord) TableName() string { return "idempotency_records" }
