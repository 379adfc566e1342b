package outbox

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/angelmondragon/events-aggregator/pkg/enums"
	"github.com/angelmondragon/events-aggregator/pkg/outbox/payloads"
)

type decoderFunc func(payload json.RawMessage) (any, error)

type registryKey struct {
	eventType enums.OutboxEventType
	version   int
}

// DecoderRegistry stores versioned payload decoders for the dispatcher.
type DecoderRegistry struct {
	mtx      sync.RWMutex
	registry map[registryKey]decoderFunc
}

func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{registry: make(map[registryKey]decoderFunc)}
}

// DefaultRegistry knows every payload this service emits.
func DefaultRegistry() *DecoderRegistry {
	r := NewDecoderRegistry()
	r.Register(enums.EventTicketPurchased, TicketPurchasedVersion, func(payload json.RawMessage) (any, error) {
		var evt payloads.TicketPurchasedEvent
		if err := json.Unmarshal(payload, &evt); err != nil {
			return nil, err
		}
		if evt.IdempotencyKey == "" || evt.Message == "" {
			return nil, fmt.Errorf("ticket_purchased payload missing message or idempotency key")
		}
		return evt, nil
	})
	return r
}

func (r *DecoderRegistry) Register(eventType enums.OutboxEventType, version int, decoder decoderFunc) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.registry[registryKey{eventType: eventType, version: version}] = decoder
}

func (r *DecoderRegistry) Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (any, error) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	if decoder, ok := r.registry[registryKey{eventType: eventType, version: version}]; ok {
		return decoder(payload)
	}
	return nil, fmt.Errorf("decoder not registered for %s@v%d", eventType, version)
}
