package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// RequestFields are the registration inputs that identify a request. The
// idempotency key itself is not part of the fingerprint.
type RequestFields struct {
	EventID   string
	FirstName string
	LastName  string
	Email     string
	Seat      string
}

// Fingerprint returns the hex SHA-256 of the canonical JSON form of the
// fields. Values are trimmed; email and event id are lower-cased so that
// equivalent submissions hash the same.
func Fingerprint(f RequestFields) string {
	canonical := map[string]string{
		"event_id":   strings.ToLower(strings.TrimSpace(f.EventID)),
		"first_name": strings.TrimSpace(f.FirstName),
		"last_name":  strings.TrimSpace(f.LastName),
		"email":      strings.ToLower(strings.TrimSpace(f.Email)),
		"seat":       strings.TrimSpace(f.Seat),
	}
	// encoding/json writes map keys in sorted order.
	raw, _ := json.Marshal(canonical)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
