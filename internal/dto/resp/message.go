package resp

import (
	"time"

	"notiflow/internal/model"
)

type MessageItem struct {
	ID                string     `json:"id"`
	BusinessID        int64      `json:"business_id"`
	Channel           string     `json:"channel"`
	Recipient         string     `json:"recipient"`
	Subject           string     `json:"subject,omitempty"`
	Content           string     `json:"content"`
	OrderID           string     `json:"order_id,omitempty"`
	Platform          string     `json:"platform,omitempty"`
	Status            string     `json:"status"`
	RetryCount        int        `json:"retry_count"`
	RetryAt           *time.Time `json:"retry_at,omitempty"`
	ExternalMessageID string     `json:"external_message_id,omitempty"`
	ErrorMessage      string     `json:"error_message,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

func NewMessageItem(msg *model.OutboxMessage) MessageItem {
	return MessageItem{
		ID:                msg.PublicID,
		BusinessID:        msg.BusinessID,
		Channel:           msg.Channel,
		Recipient:         msg.Recipient,
		Subject:           msg.Subject,
		Content:           msg.Content,
		OrderID:           msg.OrderID,
		Platform:          msg.Platform,
		Status:            model.StatusName(msg.Status),
		RetryCount:        msg.RetryCount,
		RetryAt:           msg.RetryAt,
		ExternalMessageID: msg.ExternalMessageID,
		ErrorMessage:      msg.ErrorMessage,
		CreatedAt:         msg.CreatedAt,
	}
}

type SendMessageResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type CancelJobResponse struct {
	Cancelled bool `json:"cancelled"`
}

type WebhookResponse struct {
	Result string `json:"result"`
}
