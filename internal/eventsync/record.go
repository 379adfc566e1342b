package eventsync

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/angelmondragon/events-aggregator/pkg/db/models"
	"github.com/angelmondragon/events-aggregator/pkg/enums"
)

const cursorLayout = "2006-01-02"

var recordValidator = newRecordValidator()

func newRecordValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

// PlaceRecord is the place embedded in a feed record.
type PlaceRecord struct {
	ID           string  `json:"id" validate:"required,uuid"`
	Name         string  `json:"name"`
	City         string  `json:"city"`
	Address      string  `json:"address"`
	SeatsPattern *string `json:"seats_pattern"`
}

// EventRecord is one entry of the provider's change feed.
type EventRecord struct {
	ID                   string       `json:"id" validate:"required,uuid"`
	Name                 string       `json:"name"`
	Place                *PlaceRecord `json:"place" validate:"-"`
	EventTime            string       `json:"event_time" validate:"required"`
	RegistrationDeadline string       `json:"registration_deadline" validate:"required"`
	Status               string       `json:"status" validate:"required"`
	NumberOfVisitors     *int         `json:"number_of_visitors" validate:"omitempty,min=0"`
	ChangedAt            *string      `json:"changed_at"`
	StatusChangedAt      *string      `json:"status_changed_at"`
}

// HasPlace reports whether the record carries a usable place. Records
// without one are skipped by the engine.
func (r EventRecord) HasPlace() bool {
	return r.Place != nil && strings.TrimSpace(r.Place.ID) != ""
}

// ParseRecord decodes and validates one feed entry. The place is only
// validated when present.
func ParseRecord(raw json.RawMessage) (EventRecord, error) {
	var rec EventRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return EventRecord{}, fmt.Errorf("decode feed record: %w", err)
	}
	if err := recordValidator.Struct(rec); err != nil {
		return EventRecord{}, fmt.Errorf("invalid feed record %q: %w", rec.ID, err)
	}
	if rec.HasPlace() {
		if err := recordValidator.Struct(rec.Place); err != nil {
			return EventRecord{}, fmt.Errorf("invalid place on feed record %q: %w", rec.ID, err)
		}
	}
	return rec, nil
}

// ToModels converts a record with a place into the rows to upsert.
func (r EventRecord) ToModels() (models.Place, models.Event, error) {
	if !r.HasPlace() {
		return models.Place{}, models.Event{}, fmt.Errorf("feed record %q has no place", r.ID)
	}

	placeID, err := uuid.Parse(r.Place.ID)
	if err != nil {
		return models.Place{}, models.Event{}, fmt.Errorf("place id %q: %w", r.Place.ID, err)
	}
	eventID, err := uuid.Parse(r.ID)
	if err != nil {
		return models.Place{}, models.Event{}, fmt.Errorf("event id %q: %w", r.ID, err)
	}
	eventTime, err := parseTimestamp(r.EventTime)
	if err != nil {
		return models.Place{}, models.Event{}, fmt.Errorf("event_time on %q: %w", r.ID, err)
	}
	deadline, err := parseTimestamp(r.RegistrationDeadline)
	if err != nil {
		return models.Place{}, models.Event{}, fmt.Errorf("registration_deadline on %q: %w", r.ID, err)
	}
	changedAt, err := parseOptionalTimestamp(r.ChangedAt)
	if err != nil {
		return models.Place{}, models.Event{}, fmt.Errorf("changed_at on %q: %w", r.ID, err)
	}
	statusChangedAt, err := parseOptionalTimestamp(r.StatusChangedAt)
	if err != nil {
		return models.Place{}, models.Event{}, fmt.Errorf("status_changed_at on %q: %w", r.ID, err)
	}

	visitors := 0
	if r.NumberOfVisitors != nil {
		visitors = *r.NumberOfVisitors
	}

	place := models.Place{
		ID:           placeID,
		Name:         r.Place.Name,
		City:         r.Place.City,
		Address:      r.Place.Address,
		SeatsPattern: r.Place.SeatsPattern,
	}
	event := models.Event{
		ID:                   eventID,
		Name:                 r.Name,
		PlaceID:              placeID,
		EventTime:            eventTime,
		RegistrationDeadline: deadline,
		Status:               enums.EventStatus(r.Status),
		NumberOfVisitors:     visitors,
		ChangedAt:            changedAt,
		StatusChangedAt:      statusChangedAt,
	}
	return place, event, nil
}

// CursorCandidates returns the day-precision cursors this record carries.
func (r EventRecord) CursorCandidates() []string {
	var out []string
	for _, raw := range []*string{r.ChangedAt, r.StatusChangedAt} {
		if c := truncateCursor(raw); c != "" {
			out = append(out, c)
		}
	}
	return out
}

func truncateCursor(raw *string) string {
	if raw == nil {
		return ""
	}
	v := strings.TrimSpace(*raw)
	if len(v) > len(cursorLayout) {
		v = v[:len(cursorLayout)]
	}
	return v
}

// NormalizeCursor accepts a date or a timestamp and returns its
// YYYY-MM-DD prefix.
func NormalizeCursor(value string) (string, error) {
	v := strings.TrimSpace(value)
	if len(v) > len(cursorLayout) {
		v = v[:len(cursorLayout)]
	}
	if _, err := time.Parse(cursorLayout, v); err != nil {
		return "", fmt.Errorf("cursor %q is not a YYYY-MM-DD date", value)
	}
	return v, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	cursorLayout,
}

// parseTimestamp reads the provider's ISO-8601 timestamps. Values without
// a zone are taken as UTC.
func parseTimestamp(value string) (time.Time, error) {
	v := strings.TrimSpace(value)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", value)
}

func parseOptionalTimestamp(value *string) (*time.Time, error) {
	if value == nil || strings.TrimSpace(*value) == "" {
		return nil, nil
	}
	t, err := parseTimestamp(*value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
