package enums

import "fmt"

// OutboxEventType identifies the kind of side effect an outbox record carries.
type OutboxEventType string

const (
	EventTicketPurchased OutboxEventType = "ticket_purchased"
)

var validEventTypes = []OutboxEventType{
	EventTicketPurchased,
}

// IsValid reports whether the value matches a registered outbox event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox event type %q", value)
}
