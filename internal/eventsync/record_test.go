package eventsync

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/events-aggregator/pkg/enums"
)

func TestParseRecordConvertsToModels(t *testing.T) {
	eventID, placeID := uuid.New(), uuid.New()
	rec, err := ParseRecord(feedRecord(t, eventID, placeID, "2026-09-01T10:00:00.123456+03:00"))
	require.NoError(t, err)
	require.True(t, rec.HasPlace())

	place, event, err := rec.ToModels()
	require.NoError(t, err)
	assert.Equal(t, placeID, place.ID)
	require.NotNil(t, place.SeatsPattern)
	assert.Equal(t, "A1-100", *place.SeatsPattern)
	assert.Equal(t, eventID, event.ID)
	assert.Equal(t, placeID, event.PlaceID)
	assert.Equal(t, enums.EventStatusPublished, event.Status)
	assert.Equal(t, 10, event.NumberOfVisitors)
	assert.Equal(t, time.Date(2026, 12, 1, 19, 0, 0, 0, time.UTC), event.EventTime)
	require.NotNil(t, event.ChangedAt)
	assert.Equal(t, time.UTC, event.ChangedAt.Location())
	assert.Nil(t, event.StatusChangedAt)
}

func TestRecordWithoutPlace(t *testing.T) {
	rec, err := ParseRecord(feedRecord(t, uuid.New(), uuid.Nil, "2026-09-01"))
	require.NoError(t, err)
	assert.False(t, rec.HasPlace())

	_, _, err = rec.ToModels()
	require.Error(t, err)

	raw := map[string]any{}
	require.NoError(t, json.Unmarshal(feedRecord(t, uuid.New(), uuid.Nil, "2026-09-01"), &raw))
	raw["place"] = map[string]any{"id": ""}
	blank, err := json.Marshal(raw)
	require.NoError(t, err)

	rec, err = ParseRecord(blank)
	require.NoError(t, err, "a place with an empty id is skipped, not rejected")
	assert.False(t, rec.HasPlace())
}

func TestParseRecordValidation(t *testing.T) {
	cases := map[string]string{
		"malformed json": `{"id":`,
		"missing time":   `{"id":"` + uuid.NewString() + `","name":"x","registration_deadline":"2026-01-01","status":"published"}`,
		"negative seats": `{"id":"` + uuid.NewString() + `","name":"x","event_time":"2026-01-01","registration_deadline":"2026-01-01","status":"published","number_of_visitors":-1}`,
		"bad place id":   `{"id":"` + uuid.NewString() + `","name":"x","event_time":"2026-01-01","registration_deadline":"2026-01-01","status":"published","place":{"id":"nope","name":"Hall"}}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseRecord(json.RawMessage(raw))
			require.Error(t, err)
		})
	}
}

func TestParseRecordAcceptsEmptyNames(t *testing.T) {
	raw := map[string]any{}
	require.NoError(t, json.Unmarshal(feedRecord(t, uuid.New(), uuid.New(), "2026-09-01"), &raw))
	raw["name"] = ""
	raw["place"].(map[string]any)["name"] = ""
	body, err := json.Marshal(raw)
	require.NoError(t, err)

	rec, err := ParseRecord(body)
	require.NoError(t, err)
	place, event, err := rec.ToModels()
	require.NoError(t, err)
	assert.Empty(t, place.Name)
	assert.Empty(t, event.Name)
}

func TestCursorCandidates(t *testing.T) {
	rec := EventRecord{
		ChangedAt:       strPtr("2026-09-01T23:59:59Z"),
		StatusChangedAt: strPtr("2026-09-03"),
	}
	assert.Equal(t, []string{"2026-09-01", "2026-09-03"}, rec.CursorCandidates())
	assert.Empty(t, EventRecord{}.CursorCandidates())
}

func TestNormalizeCursor(t *testing.T) {
	got, err := NormalizeCursor(" 2026-02-03 ")
	require.NoError(t, err)
	assert.Equal(t, "2026-02-03", got)

	got, err = NormalizeCursor("2026-02-03T04:05:06Z")
	require.NoError(t, err)
	assert.Equal(t, "2026-02-03", got)

	_, err = NormalizeCursor("03/02/2026")
	require.Error(t, err)
}
