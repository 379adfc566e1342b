package cron

import (
	"context"
	"errors"

	"github.com/angelmondragon/events-aggregator/internal/eventsync"
	"github.com/angelmondragon/events-aggregator/pkg/logger"
)

const syncJobName = "event_sync"

// SyncJob runs an incremental sync from the stored cursor.
type SyncJob struct {
	runner eventsync.Runner
	logg   *logger.Logger
}

func NewSyncJob(runner eventsync.Runner, logg *logger.Logger) (*SyncJob, error) {
	if runner == nil {
		return nil, errors.New("sync runner required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &SyncJob{runner: runner, logg: logg}, nil
}

func (j *SyncJob) Name() string { return syncJobName }

func (j *SyncJob) Run(ctx context.Context) error {
	res, err := j.runner.Run(ctx, "")
	if err != nil {
		return err
	}
	if res.Skipped {
		j.logg.Info(ctx, "sync already in progress; scheduled run skipped")
	}
	return nil
}
