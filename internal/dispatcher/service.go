package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/events-aggregator/pkg/config"
	"github.com/angelmondragon/events-aggregator/pkg/db/models"
	"github.com/angelmondragon/events-aggregator/pkg/logger"
	"github.com/angelmondragon/events-aggregator/pkg/metrics"
	"github.com/angelmondragon/events-aggregator/pkg/notifier"
	"github.com/angelmondragon/events-aggregator/pkg/outbox"
	"github.com/angelmondragon/events-aggregator/pkg/outbox/payloads"
)

const (
	defaultBatchSize       = 50
	defaultPollMs          = 5000
	defaultMaxAttempts     = 10
	defaultDeliveryTimeout = 15 * time.Second
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxRepository interface {
	FetchPending(ctx context.Context, limit, maxAttempts int) ([]models.OutboxRecord, error)
	MarkSent(tx *gorm.DB, id uuid.UUID, sentAt time.Time) (bool, error)
	IncrementAttempts(tx *gorm.DB, id uuid.UUID, maxAttempts int, cause error) (bool, error)
	Stats(ctx context.Context, maxAttempts int) (outbox.Stats, error)
}

type sender interface {
	Send(ctx context.Context, n notifier.Notification) (notifier.Delivery, error)
}

type ServiceParams struct {
	Config     config.OutboxConfig
	Logger     *logger.Logger
	DB         txRunner
	Repository outboxRepository
	Registry   *outbox.DecoderRegistry
	Notifier   sender
	Metrics    *metrics.OutboxMetrics
	Now        func() time.Time
}

// Service delivers outbox records to the notification service. Records are
// retried on every tick, oldest first, until delivered or out of attempts.
type Service struct {
	logg         *logger.Logger
	db           txRunner
	repo         outboxRepository
	registry     *outbox.DecoderRegistry
	notifier     sender
	metrics      *metrics.OutboxMetrics
	now          func() time.Time
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
}

// BatchResult counts what one tick did.
type BatchResult struct {
	Fetched      int
	Sent         int
	Failed       int
	DeadLettered int
}

func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Repository == nil {
		return nil, errors.New("outbox repository is required")
	}
	if params.Notifier == nil {
		return nil, errors.New("notifier is required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	if params.Registry == nil {
		params.Registry = outbox.DefaultRegistry()
	}
	if params.Now == nil {
		params.Now = time.Now
	}

	batch := params.Config.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	pollMs := params.Config.PollIntervalMS
	if pollMs <= 0 {
		pollMs = defaultPollMs
	}
	maxAttempts := params.Config.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	return &Service{
		logg:         params.Logger,
		db:           params.DB,
		repo:         params.Repository,
		registry:     params.Registry,
		notifier:     params.Notifier,
		metrics:      params.Metrics,
		now:          params.Now,
		batchSize:    batch,
		maxAttempts:  maxAttempts,
		pollInterval: time.Duration(pollMs) * time.Millisecond,
	}, nil
}

// Run polls until ctx is cancelled. A failed tick is logged and retried on
// the next one.
func (s *Service) Run(ctx context.Context) error {
	ctx = s.logg.WithComponent(ctx, "outbox_dispatcher")
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"batch_size":    s.batchSize,
		"max_attempts":  s.maxAttempts,
		"poll_interval": s.pollInterval.String(),
	}), "outbox dispatcher started")

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "outbox dispatcher stopped")
			return nil
		default:
		}

		if _, err := s.ProcessBatch(ctx); err != nil && ctx.Err() == nil {
			s.logg.Error(ctx, "outbox dispatcher batch error", err)
		}

		if err := s.sleep(ctx, s.pollInterval); err != nil {
			s.logg.Info(ctx, "outbox dispatcher stopped")
			return nil
		}
	}
}

// ProcessBatch runs one tick. Only a failure to select records fails the
// tick; each record is settled in its own transaction.
func (s *Service) ProcessBatch(ctx context.Context) (BatchResult, error) {
	records, err := s.repo.FetchPending(ctx, s.batchSize, s.maxAttempts)
	if err != nil {
		return BatchResult{}, fmt.Errorf("fetch pending outbox records: %w", err)
	}

	result := BatchResult{Fetched: len(records)}
	for _, record := range records {
		if ctx.Err() != nil {
			break
		}
		sent, dead, err := s.processRecord(ctx, record)
		switch {
		case err != nil:
			s.logg.Error(s.logg.WithFields(ctx, recordFields(record)), "outbox record could not be settled", err)
			result.Failed++
		case sent:
			result.Sent++
		default:
			result.Failed++
			if dead {
				result.DeadLettered++
			}
		}
	}

	s.refreshBacklog(ctx)
	return result, nil
}

// processRecord delivers one record. It reports whether the record was sent
// and whether a failed attempt exhausted it.
func (s *Service) processRecord(ctx context.Context, record models.OutboxRecord) (bool, bool, error) {
	n, err := s.decode(record)
	if err != nil {
		s.metrics.IncDelivery(metrics.OutcomeRejected)
		dead, incErr := s.recordFailure(ctx, record, fmt.Errorf("undecodable payload: %w", err))
		return false, dead, incErr
	}

	started := s.now()
	var delivery notifier.Delivery
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		sendCtx, cancel := context.WithTimeout(ctx, defaultDeliveryTimeout)
		defer cancel()

		var sendErr error
		delivery, sendErr = s.notifier.Send(sendCtx, n)
		if sendErr != nil {
			return sendErr
		}
		marked, markErr := s.repo.MarkSent(tx, record.ID, s.now().UTC())
		if markErr != nil {
			return fmt.Errorf("mark sent %s: %w", record.ID, markErr)
		}
		if !marked {
			s.logg.Warn(s.logg.WithFields(ctx, recordFields(record)), "outbox record already settled")
		}
		return nil
	})
	s.metrics.ObserveDelivery(s.now().Sub(started))

	if err == nil {
		s.metrics.IncDelivery(metrics.OutcomeSent)
		fields := recordFields(record)
		fields["duplicate"] = delivery.Duplicate
		s.logg.Info(s.logg.WithFields(ctx, fields), "outbox record delivered")
		return true, false, nil
	}

	// Interrupted by shutdown; the record stays pending with its attempts intact.
	if ctx.Err() != nil {
		s.logg.Warn(s.logg.WithFields(ctx, recordFields(record)), "outbox delivery interrupted")
		return false, false, nil
	}

	if notifier.IsRetryable(err) {
		s.metrics.IncDelivery(metrics.OutcomeRetry)
	} else {
		s.metrics.IncDelivery(metrics.OutcomeRejected)
	}
	dead, incErr := s.recordFailure(ctx, record, err)
	return false, dead, incErr
}

func (s *Service) decode(record models.OutboxRecord) (notifier.Notification, error) {
	env, err := outbox.DecodeEnvelope(record.Payload)
	if err != nil {
		return notifier.Notification{}, err
	}
	decoded, err := s.registry.Decode(record.EventType, env.Version, env.Data)
	if err != nil {
		return notifier.Notification{}, err
	}
	notifiable, ok := decoded.(payloads.Notifiable)
	if !ok {
		return notifier.Notification{}, fmt.Errorf("%s payload is not deliverable", record.EventType)
	}
	return notifiable.Notification(), nil
}

// recordFailure increments attempts in a fresh transaction and reports
// whether the record is now dead-lettered.
func (s *Service) recordFailure(ctx context.Context, record models.OutboxRecord, cause error) (bool, error) {
	var incremented bool
	err := s.db.WithTx(context.WithoutCancel(ctx), func(tx *gorm.DB) error {
		var err error
		incremented, err = s.repo.IncrementAttempts(tx, record.ID, s.maxAttempts, cause)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("increment attempts %s: %w", record.ID, err)
	}

	attempts := record.Attempts + 1
	fields := recordFields(record)
	fields["attempts"] = attempts
	fields["error"] = cause.Error()
	logCtx := s.logg.WithFields(ctx, fields)

	if !incremented {
		s.logg.Warn(logCtx, "outbox record attempts not incremented; already settled or exhausted")
		return false, nil
	}
	if attempts >= s.maxAttempts {
		s.metrics.IncDelivery(metrics.OutcomeDeadLettered)
		s.logg.Warn(logCtx, "outbox record dead-lettered after max attempts")
		return true, nil
	}
	s.logg.Warn(logCtx, "outbox delivery failed; will retry")
	return false, nil
}

func (s *Service) refreshBacklog(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	stats, err := s.repo.Stats(ctx, s.maxAttempts)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "outbox backlog refresh failed")
		return
	}
	s.metrics.SetBacklog(int(stats.Pending))
}

// Stats reports delivery state for operators.
func (s *Service) Stats(ctx context.Context) (outbox.Stats, error) {
	return s.repo.Stats(ctx, s.maxAttempts)
}

func recordFields(record models.OutboxRecord) map[string]any {
	fields := map[string]any{
		"outbox_id":  record.ID.String(),
		"event_type": record.EventType,
		"attempts":   record.Attempts,
	}
	if record.LastError != nil {
		fields["last_error"] = *record.LastError
	}
	return fields
}

func (s *Service) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
