package service

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"notiflow/internal/model"
	"notiflow/internal/repository"
	"notiflow/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Sweeper promotes due jobs from pending to fired and creates the resulting
// outbox message in the same transaction as the claim, so overlapping ticks
// (or a second instance hitting the same table) cannot double-create.
type Sweeper struct {
	db       *gorm.DB
	jobs     repository.JobInterface
	messages repository.MessageInterface
	interval time.Duration
	batch    int
	inFlight atomic.Bool
	now      func() time.Time
}

func NewSweeper(db *gorm.DB, jobs repository.JobInterface, messages repository.MessageInterface, interval time.Duration, batch int) *Sweeper {
	return &Sweeper{
		db:       db,
		jobs:     jobs,
		messages: messages,
		interval: interval,
		batch:    batch,
		now:      time.Now,
	}
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	logger.Info("job sweeper started", zap.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			logger.Info("job sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one tick. If the previous tick is still running the whole tick
// is skipped; the guard is released on every exit path.
func (s *Sweeper) Sweep(ctx context.Context) {
	if !s.inFlight.CompareAndSwap(false, true) {
		logger.Debug("sweep skipped, previous tick still running")
		return
	}
	defer s.inFlight.Store(false)

	jobs, err := s.jobs.FetchDue(ctx, s.now(), s.batch)
	if err != nil {
		logger.Error("failed to fetch due jobs", zap.Error(err))
		return
	}

	for _, job := range jobs {
		if err := s.fire(ctx, &job); err != nil {
			logger.Error("failed to fire job", zap.Int64("id", job.ID), zap.Error(err))
		}
	}
}

func (s *Sweeper) fire(ctx context.Context, job *model.QueuedJob) error {
	var payload JobPayload
	if err := json.Unmarshal([]byte(job.Payload), &payload); err != nil {
		// Corrupt payload: claim the job so it is not retried forever, but
		// no message can be created from it.
		logger.Error("job payload corrupt", zap.Int64("id", job.ID), zap.Error(err))
		_, claimErr := s.jobs.ClaimFire(ctx, job.ID)
		return claimErr
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txJobs := s.jobs.WithTx(tx)
		txMessages := s.messages.WithTx(tx)

		claimed, err := txJobs.ClaimFire(ctx, job.ID)
		if err != nil {
			return err
		}
		if !claimed {
			// Lost the race to a concurrent sweep, or the job was cancelled
			// after the fetch. Either way there is nothing to create.
			return nil
		}

		msg := &model.OutboxMessage{
			PublicID:   uuid.New().String(),
			BusinessID: job.BusinessID,
			Channel:    payload.Channel,
			Recipient:  payload.Recipient,
			Subject:    payload.Subject,
			Content:    payload.Content,
			OrderID:    payload.OrderID,
			Platform:   payload.Platform,
			Status:     model.StatusPending,
		}
		if err := txMessages.Create(ctx, msg); err != nil {
			return err
		}
		logger.Info("job fired",
			zap.Int64("job_id", job.ID),
			zap.Int64("message_id", msg.ID),
			zap.String("channel", msg.Channel))
		return nil
	})
}
