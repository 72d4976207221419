package service

import (
	"context"
	"fmt"
	"time"

	"notiflow/internal/metrics"
	"notiflow/internal/model"
	"notiflow/internal/repository"
	"notiflow/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Reconciliation results. Everything here maps to a 200 at the boundary;
// the distinctions only feed logs and metrics.
const (
	ResultApplied   = "applied"
	ResultStale     = "stale"
	ResultNoop      = "noop"
	ResultIgnored   = "ignored"
	ResultEnqueued  = "enqueued"
	ResultDuplicate = "duplicate"
	ResultCancelled = "cancelled"
	ResultSkipped   = "skipped"
)

// Recognized provider status events. Unknown names are ignored, never rejected.
var eventStatus = map[string]int{
	"message.sent":      model.StatusSent,
	"message.delivered": model.StatusDelivered,
	"message.opened":    model.StatusOpened,
	"message.clicked":   model.StatusClicked,
	"message.failed":    model.StatusFailed,
	"message.bounced":   model.StatusBounced,
}

const (
	EventOrderCompleted = "order.completed"
	EventOrderCancelled = "order.cancelled"

	dedupTTL = 10 * time.Minute
)

// ProviderEvent is a verified delivery-status event from a transport provider.
type ProviderEvent struct {
	Event             string
	ExternalMessageID string
	Reason            string
}

// OrderEvent is a verified upstream commerce event.
type OrderEvent struct {
	Event    string
	OrderID  string
	Platform string
	Customer CustomerInfo
}

type CustomerInfo struct {
	Name  string
	Phone string
	Email string
}

// JobQueue is the queue surface the ingestor depends on.
type JobQueue interface {
	Enqueue(ctx context.Context, businessID int64, naturalKey string, payload JobPayload, delay time.Duration) (*model.QueuedJob, bool, error)
	Cancel(ctx context.Context, businessID int64, naturalKey, reason string) (bool, error)
}

// IngestService reconciles outbox and queue state from out-of-band webhook
// events. Every operation is idempotent and order-independent: late,
// duplicate or unknown events degrade to accepted no-ops.
type IngestService struct {
	messages  repository.MessageInterface
	contacts  repository.ContactInterface
	queue     JobQueue
	rdb       *redis.Client
	observer  metrics.DeliveryObserver
	sendDelay time.Duration
}

func NewIngestService(
	messages repository.MessageInterface,
	contacts repository.ContactInterface,
	queue JobQueue,
	rdb *redis.Client,
	observer metrics.DeliveryObserver,
	sendDelay time.Duration,
) *IngestService {
	return &IngestService{
		messages:  messages,
		contacts:  contacts,
		queue:     queue,
		rdb:       rdb,
		observer:  observer,
		sendDelay: sendDelay,
	}
}

// Dedup reports whether this delivery id was seen before within the dedup
// window. When redis is unavailable it fails open: a duplicate slipping
// through becomes a no-op downstream anyway.
func (s *IngestService) Dedup(ctx context.Context, scope, deliveryID string) bool {
	key := fmt.Sprintf("webhook:seen:%s:%s", scope, deliveryID)
	fresh, err := s.rdb.SetNX(ctx, key, 1, dedupTTL).Result()
	if err != nil {
		logger.Warn("webhook dedup unavailable", zap.Error(err))
		return false
	}
	return !fresh
}

// HandleProviderEvent applies a delivery-status event to the outbox row it
// targets, honoring the monotonic status order.
func (s *IngestService) HandleProviderEvent(ctx context.Context, ev ProviderEvent) (string, error) {
	status, known := eventStatus[ev.Event]
	if !known {
		s.observer.RecordWebhookEvent(ev.Event, ResultIgnored)
		logger.Debug("unrecognized webhook event ignored", zap.String("event", ev.Event))
		return ResultIgnored, nil
	}

	msg, err := s.messages.GetByExternalID(ctx, ev.ExternalMessageID)
	if err != nil {
		return "", err
	}
	if msg == nil {
		// Late or foreign event for a message we do not track.
		s.observer.RecordWebhookEvent(ev.Event, ResultNoop)
		return ResultNoop, nil
	}

	errMsg := ""
	if status == model.StatusFailed || status == model.StatusBounced {
		errMsg = ev.Reason
		if errMsg == "" {
			errMsg = ev.Event
		}
	}

	applied, err := s.messages.ApplyStatus(ctx, msg.ID, status, errMsg)
	if err != nil {
		return "", err
	}
	result := ResultStale
	if applied {
		result = ResultApplied
		logger.Info("delivery status updated",
			zap.Int64("id", msg.ID),
			zap.String("status", model.StatusName(status)),
			zap.String("event", ev.Event))
	}
	s.observer.RecordWebhookEvent(ev.Event, result)
	return result, nil
}

// HandleOrderEvent converts an upstream order event into queue activity:
// completion enqueues a delayed review request, cancellation withdraws it.
func (s *IngestService) HandleOrderEvent(ctx context.Context, business *model.Business, ev OrderEvent) (string, error) {
	naturalKey := model.JobNaturalKey(ev.OrderID, ev.Platform)

	switch ev.Event {
	case EventOrderCompleted:
		if ev.Customer.Phone == "" && ev.Customer.Email == "" {
			s.observer.RecordWebhookEvent(ev.Event, ResultSkipped)
			logger.Debug("order has no contact, skipping",
				zap.Int64("business_id", business.ID),
				zap.String("order_id", ev.OrderID))
			return ResultSkipped, nil
		}

		if err := s.contacts.Upsert(ctx, &model.OrderContact{
			BusinessID:   business.ID,
			OrderID:      ev.OrderID,
			Platform:     ev.Platform,
			CustomerName: ev.Customer.Name,
			Phone:        ev.Customer.Phone,
			Email:        ev.Customer.Email,
		}); err != nil {
			return "", err
		}

		_, created, err := s.queue.Enqueue(ctx, business.ID, naturalKey, s.buildPayload(ev), s.sendDelay)
		if err != nil {
			return "", err
		}
		result := ResultDuplicate
		if created {
			result = ResultEnqueued
		}
		s.observer.RecordWebhookEvent(ev.Event, result)
		return result, nil

	case EventOrderCancelled:
		cancelled, err := s.queue.Cancel(ctx, business.ID, naturalKey, "order cancelled upstream")
		if err != nil {
			return "", err
		}
		result := ResultNoop
		if cancelled {
			result = ResultCancelled
		}
		s.observer.RecordWebhookEvent(ev.Event, result)
		return result, nil

	default:
		s.observer.RecordWebhookEvent(ev.Event, ResultIgnored)
		return ResultIgnored, nil
	}
}

func (s *IngestService) buildPayload(ev OrderEvent) JobPayload {
	name := ev.Customer.Name
	if name == "" {
		name = "there"
	}
	payload := JobPayload{
		OrderID:  ev.OrderID,
		Platform: ev.Platform,
		Content:  fmt.Sprintf("Hi %s, thanks for your recent order! We'd love to hear how it went. Would you leave us a quick review?", name),
	}
	if ev.Customer.Phone != "" {
		payload.Channel = model.ChannelSMS
		payload.Recipient = ev.Customer.Phone
	} else {
		payload.Channel = model.ChannelEmail
		payload.Recipient = ev.Customer.Email
		payload.Subject = "How was your order?"
	}
	return payload
}
