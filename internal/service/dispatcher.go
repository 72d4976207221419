package service

import (
	"context"
	"sync/atomic"
	"time"

	"notiflow/internal/metrics"
	"notiflow/internal/model"
	"notiflow/internal/provider"
	"notiflow/internal/repository"
	"notiflow/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RateGate is the throttle surface the dispatcher depends on. It delays,
// it never rejects; the only error is a cancelled context.
type RateGate interface {
	Acquire(ctx context.Context, scope string) error
}

// Dispatcher is the single-flight polling loop that drains due outbox rows
// through the rate-limited provider adapters, applying the retry policy and
// the sms→email fallback.
type Dispatcher struct {
	db        *gorm.DB
	messages  repository.MessageInterface
	contacts  repository.ContactInterface
	providers *provider.Registry
	limiter   RateGate
	policy    RetryPolicy
	observer  metrics.DeliveryObserver
	interval  time.Duration
	batchSize int
	inFlight  atomic.Bool
	now       func() time.Time
}

func NewDispatcher(
	db *gorm.DB,
	messages repository.MessageInterface,
	contacts repository.ContactInterface,
	providers *provider.Registry,
	limiter RateGate,
	policy RetryPolicy,
	observer metrics.DeliveryObserver,
	interval time.Duration,
	batchSize int,
) *Dispatcher {
	return &Dispatcher{
		db:        db,
		messages:  messages,
		contacts:  contacts,
		providers: providers,
		limiter:   limiter,
		policy:    policy,
		observer:  observer,
		interval:  interval,
		batchSize: batchSize,
		now:       time.Now,
	}
}

func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	logger.Info("dispatcher started",
		zap.Duration("interval", d.interval),
		zap.Int("batch_size", d.batchSize))

	for {
		select {
		case <-ctx.Done():
			logger.Info("dispatcher stopped")
			return
		case <-ticker.C:
			d.Dispatch(ctx)
		}
	}
}

// Dispatch runs one poll tick. A tick that would overlap the previous one is
// skipped entirely; the in-flight marker is released on every exit path so a
// panicking tick cannot wedge the loop.
func (d *Dispatcher) Dispatch(ctx context.Context) {
	if !d.inFlight.CompareAndSwap(false, true) {
		logger.Debug("dispatch skipped, previous tick still running")
		return
	}
	defer d.inFlight.Store(false)

	msgs, err := d.messages.FetchDue(ctx, d.now(), d.batchSize)
	if err != nil {
		logger.Error("failed to fetch due messages", zap.Error(err))
		return
	}

	for i := range msgs {
		// Per-item failures never abort the batch.
		if err := d.dispatchOne(ctx, &msgs[i]); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("dispatch failed", zap.Int64("id", msgs[i].ID), zap.Error(err))
		}
	}

	if backlog, err := d.messages.CountPending(ctx); err == nil {
		d.observer.SetPendingBacklog(backlog)
	}
}

func (d *Dispatcher) dispatchOne(ctx context.Context, msg *model.OutboxMessage) error {
	adapter, ok := d.providers.ByChannel(msg.Channel)
	if !ok {
		d.observer.RecordSend(msg.Channel, "failed")
		_, err := d.messages.MarkFailed(ctx, msg.ID, "no provider configured for channel "+msg.Channel)
		return err
	}

	if err := d.limiter.Acquire(ctx, adapter.Name()); err != nil {
		return err
	}

	start := d.now()
	res, err := adapter.Send(ctx, msg)
	d.observer.ObserveSendLatency(msg.Channel, d.now().Sub(start).Seconds())
	if err != nil {
		// Transport error (timeout included): retryable like a declined send.
		res = provider.SendResult{Success: false, Error: err.Error()}
	}

	if res.Success {
		updated, err := d.messages.MarkSent(ctx, msg.ID, res.ExternalID)
		if err != nil {
			return err
		}
		if !updated {
			logger.Warn("sent message no longer pending", zap.Int64("id", msg.ID))
		}
		d.observer.RecordSend(msg.Channel, "sent")
		logger.Info("message sent",
			zap.Int64("id", msg.ID),
			zap.String("channel", msg.Channel),
			zap.String("external_id", res.ExternalID))
		return nil
	}

	return d.handleFailure(ctx, msg, res.Error)
}

func (d *Dispatcher) handleFailure(ctx context.Context, msg *model.OutboxMessage, sendErr string) error {
	d.observer.RecordSend(msg.Channel, "failed")

	if msg.Channel == model.ChannelSMS && msg.OrderID != "" {
		created, err := d.tryFallback(ctx, msg, sendErr)
		if err != nil {
			return err
		}
		if created {
			return nil
		}
	}

	if d.policy.ShouldRetry(msg.RetryCount) {
		newCount := msg.RetryCount + 1
		retryAt := d.now().Add(d.policy.NextDelay(newCount))
		scheduled, err := d.messages.ScheduleRetry(ctx, msg.ID, newCount, retryAt, sendErr)
		if err != nil {
			return err
		}
		if scheduled {
			d.observer.RecordRetry(msg.Channel)
			logger.Warn("send failed, retry scheduled",
				zap.Int64("id", msg.ID),
				zap.Int("retry_count", newCount),
				zap.Time("retry_at", retryAt),
				zap.String("error", sendErr))
		}
		return nil
	}

	if _, err := d.messages.MarkFailed(ctx, msg.ID, sendErr); err != nil {
		return err
	}
	logger.Error("message failed permanently",
		zap.Int64("id", msg.ID),
		zap.Int("retry_count", msg.RetryCount),
		zap.String("error", sendErr))
	return nil
}

// tryFallback creates a fresh email message for a failed SMS when the order
// has a known email address. The original is terminal after that: one order,
// one active channel at a time. The fallback starts its own retry lifecycle.
// Create and the original's terminal update commit together; if either write
// fails the whole step rolls back, the SMS stays pending, and the next tick
// starts over with no stray email row left behind.
func (d *Dispatcher) tryFallback(ctx context.Context, msg *model.OutboxMessage, sendErr string) (bool, error) {
	contact, err := d.contacts.GetByOrder(ctx, msg.BusinessID, msg.OrderID, msg.Platform)
	if err != nil {
		return false, err
	}
	if contact == nil || contact.Email == "" {
		return false, nil
	}

	subject := msg.Subject
	if subject == "" {
		subject = "About your recent order"
	}
	fallback := &model.OutboxMessage{
		PublicID:   uuid.New().String(),
		BusinessID: msg.BusinessID,
		Channel:    model.ChannelEmail,
		Recipient:  contact.Email,
		Subject:    subject,
		Content:    msg.Content,
		OrderID:    msg.OrderID,
		Platform:   msg.Platform,
		Status:     model.StatusPending,
	}
	err = d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txMessages := d.messages.WithTx(tx)
		if err := txMessages.Create(ctx, fallback); err != nil {
			return err
		}
		_, err := txMessages.MarkFailed(ctx, msg.ID, "sms send failed, fallback email created: "+sendErr)
		return err
	})
	if err != nil {
		return false, err
	}

	d.observer.RecordFallback()
	logger.Info("sms failed, email fallback created",
		zap.Int64("sms_id", msg.ID),
		zap.Int64("email_id", fallback.ID),
		zap.String("order_id", msg.OrderID))
	return true, nil
}
