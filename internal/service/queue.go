package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"notiflow/internal/metrics"
	"notiflow/internal/model"
	"notiflow/internal/repository"
	"notiflow/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// JobPayload is what a fired job turns into an outbox row. It is frozen at
// enqueue time so a later contact update cannot change an in-flight job.
type JobPayload struct {
	Channel   string `json:"channel"`
	Recipient string `json:"recipient"`
	Subject   string `json:"subject,omitempty"`
	Content   string `json:"content"`
	OrderID   string `json:"order_id,omitempty"`
	Platform  string `json:"platform,omitempty"`
}

// QueueService is the delayed job queue: idempotent enqueue by natural key,
// cancellation while pending. The sweeper owns the pending→fired transition.
type QueueService struct {
	db       *gorm.DB
	jobs     repository.JobInterface
	observer metrics.DeliveryObserver
	now      func() time.Time
}

func NewQueueService(db *gorm.DB, jobs repository.JobInterface, observer metrics.DeliveryObserver) *QueueService {
	return &QueueService{
		db:       db,
		jobs:     jobs,
		observer: observer,
		now:      time.Now,
	}
}

// Enqueue schedules a job delay from now. If a non-cancelled job already
// exists for (businessID, naturalKey) it is returned unchanged; re-delivery
// of the same upstream event is a no-op, not a fault. Two enqueues racing
// past each other's read both insert, but the uniq_live_job index lets only
// one commit; the loser resolves the winner's row and reports duplicate.
func (s *QueueService) Enqueue(ctx context.Context, businessID int64, naturalKey string, payload JobPayload, delay time.Duration) (*model.QueuedJob, bool, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, false, err
	}

	var job *model.QueuedJob
	created := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txJobs := s.jobs.WithTx(tx)

		existing, err := txJobs.GetActive(ctx, businessID, naturalKey)
		if err != nil {
			return err
		}
		if existing != nil {
			job = existing
			return nil
		}

		job = &model.QueuedJob{
			BusinessID:  businessID,
			NaturalKey:  naturalKey,
			Active:      model.JobActive(),
			Payload:     string(raw),
			Status:      model.JobPending,
			ScheduledAt: s.now().Add(delay),
		}
		created = true
		return txJobs.Create(ctx, job)
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		existing, getErr := s.jobs.GetActive(ctx, businessID, naturalKey)
		if getErr == nil && existing != nil {
			s.observer.RecordEnqueue("duplicate")
			logger.Debug("concurrent enqueue lost to existing job",
				zap.Int64("business_id", businessID),
				zap.String("natural_key", naturalKey))
			return existing, false, nil
		}
	}
	if err != nil {
		s.observer.RecordEnqueue("error")
		return nil, false, err
	}

	if created {
		s.observer.RecordEnqueue("created")
		logger.Info("job enqueued",
			zap.Int64("business_id", businessID),
			zap.String("natural_key", naturalKey),
			zap.Time("scheduled_at", job.ScheduledAt))
	} else {
		s.observer.RecordEnqueue("duplicate")
		logger.Debug("duplicate enqueue ignored",
			zap.Int64("business_id", businessID),
			zap.String("natural_key", naturalKey))
	}
	return job, created, nil
}

// Cancel cancels the pending job for the key. Returns false when there is
// nothing pending to cancel; a job that already fired stays fired and its
// outbox message keeps its own lifecycle.
func (s *QueueService) Cancel(ctx context.Context, businessID int64, naturalKey, reason string) (bool, error) {
	cancelled, err := s.jobs.Cancel(ctx, businessID, naturalKey, reason, s.now())
	if err != nil {
		return false, err
	}
	if cancelled {
		logger.Info("job cancelled",
			zap.Int64("business_id", businessID),
			zap.String("natural_key", naturalKey),
			zap.String("reason", reason))
	}
	return cancelled, nil
}
