package mnotify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kwabenaosei/agritrade-backend/pkg/config"
	pkgerrors "github.com/kwabenaosei/agritrade-backend/pkg/errors"
)

// Sender is the SMS surface the notification dispatcher depends on.
type Sender interface {
	SendSMS(ctx context.Context, recipient, message string) error
}

// Client talks to the mNotify SMS API.
type Client struct {
	apiKey   string
	senderID string
	baseURL  string
	http     *http.Client
}

// New builds an mNotify client from configuration.
func New(cfg config.MNotify) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("mnotify api key is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.mnotify.com/api"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		apiKey:   cfg.APIKey,
		senderID: cfg.SenderID,
		baseURL:  baseURL,
		http:     &http.Client{Timeout: timeout},
	}, nil
}

// SendSMS delivers a single message to one recipient.
func (c *Client) SendSMS(ctx context.Context, recipient, message string) error {
	if recipient == "" || message == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "recipient and message are required")
	}

	payload := map[string]any{
		"recipient": []string{recipient},
		"sender":    c.senderID,
		"message":   message,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode sms request")
	}

	url := fmt.Sprintf("%s/sms/quick?key=%s", c.baseURL, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build sms request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sms request failed")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("mnotify responded %d", resp.StatusCode))
	}
	return nil
}

// Noop is a Sender that drops messages, used when SMS is disabled.
type Noop struct{}

// SendSMS implements Sender.
func (Noop) SendSMS(context.Context, string, string) error { return nil }
