package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/events-aggregator/pkg/config"
)

const (
	defaultTimeout           = 30 * time.Second
	errorBodyReadLimit int64 = 1024
)

var errBaseURLRequired = errors.New("notifier base url is required")

// Notification is the body accepted by the notification service.
type Notification struct {
	Message        string `json:"message"`
	ReferenceID    string `json:"reference_id"`
	IdempotencyKey string `json:"idempotency_key"`
}

// Delivery describes an accepted notification.
type Delivery struct {
	StatusCode int
	// Duplicate is set when the service already had a notification with the
	// same idempotency key.
	Duplicate bool
}

// RejectedError is a 4xx answer other than 409. Retrying the same request
// will not succeed.
type RejectedError struct {
	StatusCode int
	Body       string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("notification rejected with %d: %s", e.StatusCode, e.Body)
}

// IsRetryable reports whether a failed Send may succeed on a later attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var rejected *RejectedError
	return !errors.As(err, &rejected)
}

// Client posts notifications to the notification service.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func NewClient(cfg config.NotifierConfig, opts ...Option) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errBaseURLRequired
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    base,
		apiKey:     strings.TrimSpace(cfg.APIKey),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// Send delivers one notification. 2xx and 409 are accepted; other 4xx
// return *RejectedError; 5xx and transport failures return a plain error.
func (c *Client) Send(ctx context.Context, n Notification) (Delivery, error) {
	payload, err := json.Marshal(n)
	if err != nil {
		return Delivery{}, &RejectedError{StatusCode: 0, Body: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/notifications", bytes.NewReader(payload))
	if err != nil {
		return Delivery{}, fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Delivery{}, fmt.Errorf("send notification: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return Delivery{StatusCode: resp.StatusCode}, nil
	case resp.StatusCode == http.StatusConflict:
		return Delivery{StatusCode: resp.StatusCode, Duplicate: true}, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500 &&
		resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode != http.StatusRequestTimeout:
		return Delivery{}, &RejectedError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	default:
		return Delivery{}, fmt.Errorf("notification service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
}
