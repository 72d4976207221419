package service

import (
	"context"
	"fmt"

	"notiflow/internal/metrics"
	"notiflow/internal/model"
	"notiflow/internal/repository"
	"notiflow/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// NotificationService is the synchronous management surface: direct sends
// bypass the delayed queue and land straight in the outbox, and operators can
// query message state. Unlike the webhook path, unknown targets here are hard
// errors.
type NotificationService struct {
	messages   repository.MessageInterface
	businesses repository.BusinessInterface
	observer   metrics.DeliveryObserver
}

type SendRequest struct {
	BusinessID int64
	Channel    string
	Recipient  string
	Subject    string
	Content    string
	OrderID    string
	Platform   string
}

func NewNotificationService(messages repository.MessageInterface, businesses repository.BusinessInterface, observer metrics.DeliveryObserver) *NotificationService {
	return &NotificationService{
		messages:   messages,
		businesses: businesses,
		observer:   observer,
	}
}

// SendDirect creates a pending outbox message for the next dispatcher tick.
func (s *NotificationService) SendDirect(ctx context.Context, req SendRequest) (*model.OutboxMessage, error) {
	if req.Channel != model.ChannelSMS && req.Channel != model.ChannelEmail {
		return nil, fmt.Errorf("%w: unknown channel %q", ErrValidation, req.Channel)
	}
	if req.Recipient == "" || req.Content == "" {
		return nil, fmt.Errorf("%w: recipient and content are required", ErrValidation)
	}

	business, err := s.businesses.GetByID(ctx, req.BusinessID)
	if err != nil {
		return nil, err
	}
	if business == nil {
		return nil, fmt.Errorf("%w: business %d", ErrNotFound, req.BusinessID)
	}
	if !business.Enabled {
		return nil, ErrBusinessDisabled
	}

	msg := &model.OutboxMessage{
		PublicID:   uuid.New().String(),
		BusinessID: req.BusinessID,
		Channel:    req.Channel,
		Recipient:  req.Recipient,
		Subject:    req.Subject,
		Content:    req.Content,
		OrderID:    req.OrderID,
		Platform:   req.Platform,
		Status:     model.StatusPending,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, err
	}

	logger.Info("direct message queued",
		zap.Int64("id", msg.ID),
		zap.Int64("business_id", msg.BusinessID),
		zap.String("channel", msg.Channel))
	return msg, nil
}

func (s *NotificationService) GetMessage(ctx context.Context, publicID string) (*model.OutboxMessage, error) {
	msg, err := s.messages.GetByPublicID(ctx, publicID)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, fmt.Errorf("%w: message %s", ErrNotFound, publicID)
	}
	return msg, nil
}

func (s *NotificationService) ListMessages(ctx context.Context, filter repository.MessageFilter) ([]model.OutboxMessage, error) {
	return s.messages.List(ctx, filter)
}
