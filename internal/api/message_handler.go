package api

import (
	"context"
	"errors"
	"net/http"

	"notiflow/internal/dto/req"
	"notiflow/internal/dto/resp"
	"notiflow/internal/model"
	"notiflow/internal/repository"
	"notiflow/internal/service"

	"github.com/gin-gonic/gin"
)

type NotificationProvider interface {
	SendDirect(ctx context.Context, req service.SendRequest) (*model.OutboxMessage, error)
	GetMessage(ctx context.Context, publicID string) (*model.OutboxMessage, error)
	ListMessages(ctx context.Context, filter repository.MessageFilter) ([]model.OutboxMessage, error)
}

type JobController interface {
	Cancel(ctx context.Context, businessID int64, naturalKey, reason string) (bool, error)
}

type MessageHandler struct {
	service NotificationProvider
	queue   JobController
}

func NewMessageHandler(service NotificationProvider, queue JobController) *MessageHandler {
	return &MessageHandler{service: service, queue: queue}
}

func (h *MessageHandler) SendMessage(c *gin.Context) {
	var r req.SendMessageRequest
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "JSON format error"})
		return
	}

	msg, err := h.service.SendDirect(c.Request.Context(), service.SendRequest{
		BusinessID: r.BusinessID,
		Channel:    r.Channel,
		Recipient:  r.Recipient,
		Subject:    r.Subject,
		Content:    r.Content,
		OrderID:    r.OrderID,
		Platform:   r.Platform,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrBusinessDisabled):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusAccepted, resp.SendMessageResponse{
		ID:     msg.PublicID,
		Status: model.StatusName(msg.Status),
	})
}

func (h *MessageHandler) GetMessage(c *gin.Context) {
	msg, err := h.service.GetMessage(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp.NewMessageItem(msg))
}

func (h *MessageHandler) ListMessages(c *gin.Context) {
	var r req.ListMessagesRequest
	if err := c.ShouldBindQuery(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid params"})
		return
	}

	filter := repository.MessageFilter{
		BusinessID: r.BusinessID,
		Channel:    r.Channel,
		Limit:      r.Limit,
		Offset:     r.Offset,
	}
	if r.Status != "" {
		status, ok := model.StatusByName(r.Status)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status"})
			return
		}
		filter.Status = &status
	}

	msgs, err := h.service.ListMessages(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	items := make([]resp.MessageItem, 0, len(msgs))
	for i := range msgs {
		items = append(items, resp.NewMessageItem(&msgs[i]))
	}
	c.JSON(http.StatusOK, items)
}

func (h *MessageHandler) CancelJob(c *gin.Context) {
	businessID, err := parseBusinessID(c.Param("businessID"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown business"})
		return
	}

	var r req.CancelJobRequest
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "JSON format error"})
		return
	}
	reason := r.Reason
	if reason == "" {
		reason = "cancelled by " + service.GetOperator(c.Request.Context())
	}

	cancelled, err := h.queue.Cancel(c.Request.Context(), businessID, model.JobNaturalKey(r.OrderID, r.Platform), reason)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp.CancelJobResponse{Cancelled: cancelled})
}
