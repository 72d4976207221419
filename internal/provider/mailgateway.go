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

// MailGateway talks to an HTTP transactional-email provider.
type MailGateway struct {
	name          string
	endpoint      string
	apiKey        string
	fromAddress   string
	webhookSecret string
	client        *http.Client
}

type MailConfig struct {
	Name          string
	Endpoint      string
	APIKey        string
	FromAddress   string
	WebhookSecret string
	SendTimeout   time.Duration
}

func NewMailGateway(cfg MailConfig) *MailGateway {
	timeout := cfg.SendTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &MailGateway{
		name:          cfg.Name,
		endpoint:      cfg.Endpoint,
		apiKey:        cfg.APIKey,
		fromAddress:   cfg.FromAddress,
		webhookSecret: cfg.WebhookSecret,
		client:        &http.Client{Timeout: timeout},
	}
}

func (g *MailGateway) Name() string    { return g.name }
func (g *MailGateway) Channel() string { return model.ChannelEmail }

type mailSendRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Ref     string `json:"ref,omitempty"`
}

func (g *MailGateway) Send(ctx context.Context, msg *model.OutboxMessage) (SendResult, error) {
	payload, err := json.Marshal(mailSendRequest{
		From:    g.fromAddress,
		To:      msg.Recipient,
		Subject: msg.Subject,
		HTML:    msg.Content,
		Ref:     msg.PublicID,
	})
	if err != nil {
		return SendResult{}, fmt.Errorf("mail gateway: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint+"/v1/mail", bytes.NewReader(payload))
	if err != nil {
		return SendResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	res, err := g.client.Do(req)
	if err != nil {
		return SendResult{}, fmt.Errorf("mail gateway: send call: %w", err)
	}
	defer res.Body.Close()

	var body gatewayResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return SendResult{}, fmt.Errorf("mail gateway: decode response: %w", err)
	}

	if res.StatusCode >= 200 && res.StatusCode < 300 && body.ID != "" {
		return SendResult{Success: true, ExternalID: body.ID}, nil
	}
	errMsg := body.Error
	if errMsg == "" {
		errMsg = fmt.Sprintf("gateway returned status %d", res.StatusCode)
	}
	return SendResult{Success: false, Error: errMsg}, nil
}

func (g *MailGateway) GetStatus(ctx context.Context, externalID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"/v1/mail/"+externalID, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	res, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("mail gateway: status call: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("mail gateway: unknown message %s", externalID)
	}
	var body gatewayResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("mail gateway: decode status: %w", err)
	}
	return body.Status, nil
}

func (g *MailGateway) VerifySignature(messageID, timestamp, sigHeader string, rawBody []byte) bool {
	v := signature.NewVerifier(g.webhookSecret)
	return v.Verify(messageID, timestamp, sigHeader, rawBody) == nil
}
