package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"notiflow/internal/model"
	"notiflow/pkg/signature"
)

// SMSGateway talks to an HTTP SMS provider. The wire format is the gateway's
// own; everything above it sees only the Adapter surface.
type SMSGateway struct {
	name          string
	endpoint      string
	apiKey        string
	webhookSecret string
	client        *http.Client
}

type GatewayConfig struct {
	Name          string
	Endpoint      string
	APIKey        string
	WebhookSecret string
	SendTimeout   time.Duration
}

func NewSMSGateway(cfg GatewayConfig) *SMSGateway {
	timeout := cfg.SendTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SMSGateway{
		name:          cfg.Name,
		endpoint:      cfg.Endpoint,
		apiKey:        cfg.APIKey,
		webhookSecret: cfg.WebhookSecret,
		client:        &http.Client{Timeout: timeout},
	}
}

func (g *SMSGateway) Name() string    { return g.name }
func (g *SMSGateway) Channel() string { return model.ChannelSMS }

type smsSendRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
	Ref  string `json:"ref,omitempty"`
}

type gatewayResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error"`
}

func (g *SMSGateway) Send(ctx context.Context, msg *model.OutboxMessage) (SendResult, error) {
	payload, err := json.Marshal(smsSendRequest{
		To:   msg.Recipient,
		Body: msg.Content,
		Ref:  msg.PublicID,
	})
	if err != nil {
		return SendResult{}, fmt.Errorf("sms gateway: marshal request: %w", err)
	}

	resp, err := g.post(ctx, g.endpoint+"/v1/sms", payload)
	if err != nil {
		return SendResult{}, err
	}
	return resp, nil
}

func (g *SMSGateway) GetStatus(ctx context.Context, externalID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"/v1/sms/"+externalID, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	res, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("sms gateway: status call: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("sms gateway: unknown message %s", externalID)
	}
	var body gatewayResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("sms gateway: decode status: %w", err)
	}
	return body.Status, nil
}

func (g *SMSGateway) VerifySignature(messageID, timestamp, sigHeader string, rawBody []byte) bool {
	v := signature.NewVerifier(g.webhookSecret)
	return v.Verify(messageID, timestamp, sigHeader, rawBody) == nil
}

func (g *SMSGateway) post(ctx context.Context, url string, payload []byte) (SendResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return SendResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	res, err := g.client.Do(req)
	if err != nil {
		return SendResult{}, fmt.Errorf("sms gateway: send call: %w", err)
	}
	defer res.Body.Close()

	var body gatewayResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return SendResult{}, fmt.Errorf("sms gateway: decode response: %w", err)
	}

	if res.StatusCode >= 200 && res.StatusCode < 300 && body.ID != "" {
		return SendResult{Success: true, ExternalID: body.ID}, nil
	}
	msg := body.Error
	if msg == "" {
		msg = fmt.Sprintf("gateway returned status %d", res.StatusCode)
	}
	return SendResult{Success: false, Error: msg}, nil
}
