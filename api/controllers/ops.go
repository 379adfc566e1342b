package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/events-aggregator/api/responses"
	"github.com/angelmondragon/events-aggregator/internal/eventsync"
	pkgerrors "github.com/angelmondragon/events-aggregator/pkg/errors"
	"github.com/angelmondragon/events-aggregator/pkg/logger"
	"github.com/angelmondragon/events-aggregator/pkg/outbox"
)

// SyncStatusReader exposes the sync watermark.
type SyncStatusReader interface {
	Status(ctx context.Context) (eventsync.Status, error)
}

// SyncStarter launches a background sync.
type SyncStarter interface {
	Start(ctx context.Context, cursorOverride string)
}

// OutboxStatsReader exposes outbox delivery counts.
type OutboxStatsReader interface {
	Stats(ctx context.Context) (outbox.Stats, error)
}

// TriggerSync validates changed_at and starts a run in the background.
func TriggerSync(starter SyncStarter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		changedAt := strings.TrimSpace(r.URL.Query().Get("changed_at"))
		if changedAt != "" {
			normalized, err := eventsync.NormalizeCursor(changedAt)
			if err != nil {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.Wrap(pkgerrors.CodeValidation, err, "changed_at must be an ISO date").
						WithDetails(map[string]any{"field": "changed_at"}))
				return
			}
			changedAt = normalized
		}
		starter.Start(r.Context(), changedAt)
		responses.WriteSuccessStatus(w, http.StatusAccepted, map[string]string{"status": "started"})
	}
}

func SyncStatus(reader SyncStatusReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := reader.Status(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "read sync status"))
			return
		}
		responses.WriteSuccess(w, status)
	}
}

func OutboxStats(reader OutboxStatsReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := reader.Stats(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "read outbox stats"))
			return
		}
		responses.WriteSuccess(w, stats)
	}
}
