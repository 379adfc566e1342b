package payloads

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/events-aggregator/pkg/notifier"
)

// TicketPurchasedEvent is queued when a registration commits. It carries
// the notification to deliver and the dedup key the notification service
// uses to collapse redeliveries.
type TicketPurchasedEvent struct {
	TicketID         uuid.UUID `json:"ticket_id"`
	ProviderTicketID uuid.UUID `json:"provider_ticket_id"`
	EventID          uuid.UUID `json:"event_id"`
	Message          string    `json:"message"`
	ReferenceID      string    `json:"reference_id"`
	IdempotencyKey   string    `json:"idempotency_key"`
}

// Notification maps the event onto the notification service body.
func (e TicketPurchasedEvent) Notification() notifier.Notification {
	return notifier.Notification{
		Message:        e.Message,
		ReferenceID:    e.ReferenceID,
		IdempotencyKey: e.IdempotencyKey,
	}
}

// Notifiable is implemented by payloads the dispatcher can deliver.
type Notifiable interface {
	Notification() notifier.Notification
}
