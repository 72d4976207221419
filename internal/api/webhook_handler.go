package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"notiflow/internal/dto/req"
	"notiflow/internal/dto/resp"
	"notiflow/internal/model"
	"notiflow/internal/provider"
	"notiflow/internal/repository"
	"notiflow/internal/service"
	"notiflow/pkg/logger"
	"notiflow/pkg/signature"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	headerWebhookID        = "X-Webhook-Id"
	headerWebhookTimestamp = "X-Webhook-Timestamp"
	headerWebhookSignature = "X-Webhook-Signature"
)

type Ingestor interface {
	Dedup(ctx context.Context, scope, deliveryID string) bool
	HandleProviderEvent(ctx context.Context, ev service.ProviderEvent) (string, error)
	HandleOrderEvent(ctx context.Context, business *model.Business, ev service.OrderEvent) (string, error)
}

type WebhookHandler struct {
	ingest     Ingestor
	providers  *provider.Registry
	businesses repository.BusinessInterface
}

func NewWebhookHandler(ingest Ingestor, providers *provider.Registry, businesses repository.BusinessInterface) *WebhookHandler {
	return &WebhookHandler{
		ingest:     ingest,
		providers:  providers,
		businesses: businesses,
	}
}

// ProviderEvent ingests a delivery-status webhook from a transport provider.
// Verification happens before any business logic; after that, everything
// (unknown ids, stale statuses, duplicates, unknown event names) is a 200.
func (h *WebhookHandler) ProviderEvent(c *gin.Context) {
	adapter, ok := h.providers.ByName(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown provider"})
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	deliveryID := c.GetHeader(headerWebhookID)
	ts := c.GetHeader(headerWebhookTimestamp)
	sig := c.GetHeader(headerWebhookSignature)
	if !adapter.VerifySignature(deliveryID, ts, sig, body) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "signature verification failed"})
		return
	}

	if h.ingest.Dedup(c.Request.Context(), adapter.Name(), deliveryID) {
		c.JSON(http.StatusOK, resp.WebhookResponse{Result: service.ResultDuplicate})
		return
	}

	var r req.ProviderEventRequest
	if err := json.Unmarshal(body, &r); err != nil || r.Event == "" || r.MessageID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed payload"})
		return
	}

	result, err := h.ingest.HandleProviderEvent(c.Request.Context(), service.ProviderEvent{
		Event:             r.Event,
		ExternalMessageID: r.MessageID,
		Reason:            r.Reason,
	})
	if err != nil {
		logger.Error("provider webhook processing failed",
			zap.String("provider", adapter.Name()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
		return
	}
	c.JSON(http.StatusOK, resp.WebhookResponse{Result: result})
}

// OrderEvent ingests an upstream commerce event for one business.
func (h *WebhookHandler) OrderEvent(c *gin.Context) {
	businessID, err := strconv.ParseInt(c.Param("businessID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown business"})
		return
	}

	business, err := h.businesses.GetByID(c.Request.Context(), businessID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	if business == nil || !business.Enabled {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown business"})
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	deliveryID := c.GetHeader(headerWebhookID)
	v := signature.NewVerifier(business.WebhookSecret)
	if err := v.Verify(deliveryID, c.GetHeader(headerWebhookTimestamp), c.GetHeader(headerWebhookSignature), body); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "signature verification failed"})
		return
	}

	if h.ingest.Dedup(c.Request.Context(), "orders:"+c.Param("businessID"), deliveryID) {
		c.JSON(http.StatusOK, resp.WebhookResponse{Result: service.ResultDuplicate})
		return
	}

	var r req.OrderEventRequest
	if err := json.Unmarshal(body, &r); err != nil || r.Event == "" || r.Order.ID == "" || r.Order.Platform == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed payload"})
		return
	}

	ev := service.OrderEvent{
		Event:    r.Event,
		OrderID:  r.Order.ID,
		Platform: r.Order.Platform,
		Customer: service.CustomerInfo{
			Name:  r.Order.Customer.Name,
			Phone: r.Order.Customer.Phone,
			Email: r.Order.Customer.Email,
		},
	}
	result, err := h.ingest.HandleOrderEvent(c.Request.Context(), business, ev)
	if err != nil {
		logger.Error("order webhook processing failed",
			zap.Int64("business_id", businessID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
		return
	}
	c.JSON(http.StatusOK, resp.WebhookResponse{Result: result})
}
