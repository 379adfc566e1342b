package idempotency

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/events-aggregator/pkg/db"
	"github.com/angelmondragon/events-aggregator/pkg/db/models"
	pkgerrors "github.com/angelmondragon/events-aggregator/pkg/errors"
)

// MaxKeyLength bounds client supplied keys.
const MaxKeyLength = 255

const keyColumn = "idempotency_key"

type Outcome int

const (
	// OutcomeNew means no prior request used the key.
	OutcomeNew Outcome = iota
	// OutcomeReplay means an identical request already succeeded.
	OutcomeReplay
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNew:
		return "new"
	case OutcomeReplay:
		return "replay"
	default:
		return "unknown"
	}
}

// Decision is the guard's verdict for a key and fingerprint.
type Decision struct {
	Outcome  Outcome
	TicketID uuid.UUID
}

// Guard decides whether a keyed registration is new, a replay, or a
// conflicting reuse of the key.
type Guard struct {
	repo *Repository
}

func NewGuard(repo *Repository) *Guard {
	return &Guard{repo: repo}
}

// NormalizeKey trims the key and rejects keys that are too long.
func NormalizeKey(key string) (string, error) {
	trimmed := strings.TrimSpace(key)
	if len(trimmed) > MaxKeyLength {
		return "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("idempotency key must be at most %d characters", MaxKeyLength))
	}
	return trimmed, nil
}

// CheckAndReserve looks the key up. It never writes; the record is stored
// by Save inside the registration transaction.
func (g *Guard) CheckAndReserve(ctx context.Context, key, fingerprint string) (Decision, error) {
	existing, err := g.repo.FindByKey(ctx, key)
	if err != nil {
		return Decision{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup idempotency key")
	}
	if existing == nil {
		return Decision{Outcome: OutcomeNew}, nil
	}
	if existing.RequestHash != fingerprint {
		return Decision{}, ConflictError(key)
	}
	return Decision{Outcome: OutcomeReplay, TicketID: existing.TicketID}, nil
}

// Save records the key inside tx. A concurrent writer that committed the
// same key first surfaces as a unique violation; see IsKeyViolation.
func (g *Guard) Save(tx *gorm.DB, key, fingerprint string, ticketID uuid.UUID) error {
	return g.repo.Insert(tx, &models.IdempotencyRecord{
		ID:             uuid.New(),
		IdempotencyKey: key,
		RequestHash:    fingerprint,
		TicketID:       ticketID,
	})
}

// IsKeyViolation reports whether err is a unique violation on the key.
func IsKeyViolation(err error) bool {
	return db.IsUniqueViolation(err, keyColumn)
}

// ConflictError is returned when a key is reused with a different request.
func ConflictError(key string) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key already used with different request data").
		WithDetails(map[string]any{"idempotency_key": key})
}
