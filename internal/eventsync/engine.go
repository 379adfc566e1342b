package eventsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/events-aggregator/pkg/db/models"
	pkgerrors "github.com/angelmondragon/events-aggregator/pkg/errors"
	"github.com/angelmondragon/events-aggregator/pkg/logger"
	"github.com/angelmondragon/events-aggregator/pkg/metrics"
	"github.com/angelmondragon/events-aggregator/pkg/upstream"
)

// FirstSyncDate is the cursor used before any run has succeeded.
const FirstSyncDate = "2000-01-01"

const defaultBatchSize = 500

// RunResult summarises one Run call.
type RunResult struct {
	// Skipped is set when another run already held the guard or the claim.
	Skipped        bool
	StartCursor    string
	Cursor         string
	Upserted       int
	SkippedRecords int
	Pages          int
}

type EngineParams struct {
	Repo       *Repository
	Feed       upstream.PageFetcher
	Logger     *logger.Logger
	Metrics    *metrics.SyncMetrics
	BatchSize  int
	InstanceID string
	Now        func() time.Time
}

// Engine pulls changed events from the provider and merges them into the
// local replica, advancing the watermark on success.
type Engine struct {
	repo       *Repository
	feed       upstream.PageFetcher
	logg       *logger.Logger
	metrics    *metrics.SyncMetrics
	batchSize  int
	instanceID string
	now        func() time.Time

	running sync.Mutex
}

func NewEngine(p EngineParams) (*Engine, error) {
	if p.Repo == nil {
		return nil, errors.New("sync repository is required")
	}
	if p.Feed == nil {
		return nil, errors.New("events feed is required")
	}
	if p.InstanceID == "" {
		return nil, errors.New("instance id is required")
	}
	if p.Logger == nil {
		p.Logger = logger.Nop()
	}
	if p.BatchSize <= 0 {
		p.BatchSize = defaultBatchSize
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	return &Engine{
		repo:       p.Repo,
		feed:       p.Feed,
		logg:       p.Logger,
		metrics:    p.Metrics,
		batchSize:  p.BatchSize,
		instanceID: p.InstanceID,
		now:        func() time.Time { return p.Now().UTC() },
	}, nil
}

// Recover repairs a watermark left running by a crashed process. Call once
// at startup before any run is scheduled.
func (e *Engine) Recover(ctx context.Context) error {
	if err := e.repo.EnsureWatermark(ctx); err != nil {
		return err
	}
	repaired, err := e.repo.ResetStale(ctx, e.now())
	if err != nil {
		return fmt.Errorf("reset stale sync state: %w", err)
	}
	if repaired > 0 {
		e.logg.Warn(e.logg.WithComponent(ctx, "sync"), "repaired sync watermark left running by a previous process")
	}
	return nil
}

// Run performs one incremental sync. cursorOverride, when non-empty,
// replaces the stored cursor as the starting point.
func (e *Engine) Run(ctx context.Context, cursorOverride string) (RunResult, error) {
	ctx = e.logg.WithComponent(ctx, "sync")

	override := ""
	if cursorOverride != "" {
		normalized, err := NormalizeCursor(cursorOverride)
		if err != nil {
			return RunResult{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid changed_at")
		}
		override = normalized
	}

	if !e.running.TryLock() {
		e.logg.Info(ctx, "sync already running in this process; skipping")
		e.metrics.IncRun("skipped")
		return RunResult{Skipped: true}, nil
	}
	defer e.running.Unlock()

	if err := e.repo.EnsureWatermark(ctx); err != nil {
		return RunResult{}, err
	}
	claimed, err := e.repo.Claim(ctx, e.instanceID, e.now())
	if err != nil {
		return RunResult{}, fmt.Errorf("claim sync watermark: %w", err)
	}
	if !claimed {
		e.logg.Info(ctx, "sync already running elsewhere; skipping")
		e.metrics.IncRun("skipped")
		return RunResult{Skipped: true}, nil
	}

	result, runErr := e.run(ctx, override)
	if runErr != nil {
		return result, e.fail(ctx, runErr)
	}

	finishedAt := e.now()
	if err := e.repo.MarkSuccess(context.WithoutCancel(ctx), e.instanceID, result.Cursor, finishedAt); err != nil {
		return result, e.fail(ctx, fmt.Errorf("record sync success: %w", err))
	}

	e.metrics.IncRun("success")
	e.metrics.SetLastSuccess(finishedAt)
	e.logg.Info(e.logg.WithFields(ctx, map[string]any{
		"start_cursor":    result.StartCursor,
		"cursor":          result.Cursor,
		"upserted":        result.Upserted,
		"skipped_records": result.SkippedRecords,
		"pages":           result.Pages,
	}), "sync completed")
	return result, nil
}

func (e *Engine) run(ctx context.Context, override string) (RunResult, error) {
	wm, err := e.repo.GetWatermark(ctx)
	if err != nil {
		return RunResult{}, err
	}
	stored := ""
	if wm.LastCursor != nil {
		stored = *wm.LastCursor
	}

	effective := override
	if effective == "" {
		effective = stored
	}
	if effective == "" {
		effective = FirstSyncDate
	}

	// The stored cursor never moves backwards, even for an older override.
	maxCursor := effective
	if stored > maxCursor {
		maxCursor = stored
	}

	result := RunResult{StartCursor: effective}
	e.logg.Info(e.logg.WithField(ctx, "changed_at", effective), "sync started")

	b := &batch{repo: e.repo, ctx: ctx, size: e.batchSize}
	err = upstream.Paginate(ctx, e.feed, effective, func(records []json.RawMessage) error {
		result.Pages++
		for _, raw := range records {
			rec, err := ParseRecord(raw)
			if err != nil {
				return err
			}
			if !rec.HasPlace() {
				result.SkippedRecords++
				e.metrics.IncSkipped()
				continue
			}
			place, event, err := rec.ToModels()
			if err != nil {
				return err
			}
			if err := b.upsert(&place, &event); err != nil {
				return err
			}
			result.Upserted++
			for _, c := range rec.CursorCandidates() {
				if c > maxCursor {
					maxCursor = c
				}
			}
		}
		return nil
	})
	if err == nil {
		err = b.commit()
	}
	if err != nil {
		b.rollback()
		return result, err
	}

	e.metrics.AddUpserts("places", result.Upserted)
	e.metrics.AddUpserts("events", result.Upserted)
	result.Cursor = maxCursor
	return result, nil
}

// fail persists the error state and returns the run failure, combined with
// any failure to record it.
func (e *Engine) fail(ctx context.Context, runErr error) error {
	e.metrics.IncRun("error")
	markErr := e.repo.MarkError(context.WithoutCancel(ctx), e.instanceID, runErr.Error(), e.now())
	if markErr != nil {
		markErr = fmt.Errorf("record sync error: %w", markErr)
	}
	err := multierr.Append(fmt.Errorf("sync run failed: %w", runErr), markErr)
	e.logg.Error(ctx, "sync failed", err)
	return err
}

// batch groups upserts into transactions of at most size records.
type batch struct {
	repo    *Repository
	ctx     context.Context
	size    int
	tx      *gorm.DB
	pending int
}

func (b *batch) upsert(place *models.Place, event *models.Event) error {
	if b.tx == nil {
		tx, err := b.repo.Begin(b.ctx)
		if err != nil {
			return fmt.Errorf("begin sync batch: %w", err)
		}
		b.tx = tx
	}
	if err := b.repo.UpsertPlace(b.tx, place); err != nil {
		return fmt.Errorf("upsert place %s: %w", place.ID, err)
	}
	if err := b.repo.UpsertEvent(b.tx, event); err != nil {
		return fmt.Errorf("upsert event %s: %w", event.ID, err)
	}
	b.pending++
	if b.pending >= b.size {
		return b.commit()
	}
	return nil
}

func (b *batch) commit() error {
	if b.tx == nil {
		return nil
	}
	err := b.tx.Commit().Error
	b.tx = nil
	b.pending = 0
	if err != nil {
		return fmt.Errorf("commit sync batch: %w", err)
	}
	return nil
}

func (b *batch) rollback() {
	if b.tx == nil {
		return
	}
	_ = b.tx.Rollback()
	b.tx = nil
	b.pending = 0
}

// Status is the watermark as exposed to operators.
type Status struct {
	Status       string     `json:"status"`
	LastCursor   *string    `json:"last_cursor"`
	LastSyncTime *time.Time `json:"last_sync_time"`
	LastError    *string    `json:"last_error"`
	ClaimedBy    *string    `json:"claimed_by,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (e *Engine) Status(ctx context.Context) (Status, error) {
	wm, err := e.repo.GetWatermark(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Status:       string(wm.Status),
		LastCursor:   wm.LastCursor,
		LastSyncTime: wm.LastSyncTime,
		LastError:    wm.LastError,
		ClaimedBy:    wm.ClaimedBy,
		UpdatedAt:    wm.UpdatedAt,
	}, nil
}
