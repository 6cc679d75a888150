package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const brevoEndpoint = "https://api.brevo.com/v3/smtp/email"

// BrevoClient sends transactional email through Brevo's SMTP API. A nil
// client means email is not configured and sends are skipped upstream.
type BrevoClient struct {
	apiKey      string
	senderEmail string
	senderName  string
	sandbox     bool
	httpClient  *http.Client
}

// NewBrevoClient returns nil when no API key is configured.
func NewBrevoClient(apiKey, senderEmail, senderName string, sandbox bool) *BrevoClient {
	if apiKey == "" || senderEmail == "" {
		return nil
	}
	return &BrevoClient{
		apiKey:      apiKey,
		senderEmail: senderEmail,
		senderName:  senderName,
		sandbox:     sandbox,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
	}
}

type brevoContact struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type brevoPayload struct {
	Sender      brevoContact           `json:"sender"`
	To          []brevoContact         `json:"to"`
	Subject     string                 `json:"subject"`
	HTMLContent string                 `json:"htmlContent"`
	Headers     map[string]interface{} `json:"headers,omitempty"`
}

type brevoResponse struct {
	MessageID string `json:"messageId"`
}

func (c *BrevoClient) Send(ctx context.Context, toEmail, toName, subject, htmlBody string) (string, error) {
	payload := brevoPayload{
		Sender:      brevoContact{Email: c.senderEmail, Name: c.senderName},
		To:          []brevoContact{{Email: toEmail, Name: toName}},
		Subject:     subject,
		HTMLContent: htmlBody,
	}
	if c.sandbox {
		payload.Headers = map[string]interface{}{"X-Sib-Sandbox": "drop"}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("brevo: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, brevoEndpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("brevo: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("brevo: send: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("brevo: status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed brevoResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", nil
	}
	return parsed.MessageID, nil
}
