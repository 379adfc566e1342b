package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/angelmondragon/events-aggregator/pkg/config"
	pkgerrors "github.com/angelmondragon/events-aggregator/pkg/errors"
)

const (
	defaultTimeout           = 30 * time.Second
	errorBodyReadLimit int64 = 1024
	apiKeyHeader             = "x-api-key"
	unavailableMessage       = "events provider unavailable"
)

var errBaseURLRequired = errors.New("events provider base url is required")

// Client talks to the events provider: the change feed, seat availability
// and ticket registration.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	breaker    *gobreaker.CircuitBreaker
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

// WithBreaker replaces the circuit breaker built from config.
func WithBreaker(breaker *gobreaker.CircuitBreaker) Option {
	return func(c *Client) {
		if breaker != nil {
			c.breaker = breaker
		}
	}
}

// NewClient builds the provider client from config.
func NewClient(cfg config.UpstreamConfig, opts ...Option) (*Client, error) {
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
		breaker:    NewBreaker("events-provider", cfg, nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// FeedPage is one page of the change feed. Results are left raw so callers
// can validate each record on its own.
type FeedPage struct {
	Results []json.RawMessage `json:"results"`
	Next    *string           `json:"next"`
}

// NextToken returns the continuation token, empty when the feed is exhausted.
func (p FeedPage) NextToken() string {
	if p.Next == nil {
		return ""
	}
	return strings.TrimSpace(*p.Next)
}

// FetchPage requests one page of events changed since changedAt
// (YYYY-MM-DD). next is the continuation returned by the previous page:
// absolute URLs are followed verbatim, anything else is sent as the cursor
// parameter.
func (c *Client) FetchPage(ctx context.Context, changedAt, next string) (FeedPage, error) {
	target, err := c.feedURL(changedAt, next)
	if err != nil {
		return FeedPage{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build feed url")
	}

	var page FeedPage
	if err := c.do(ctx, http.MethodGet, target, nil, &page); err != nil {
		return FeedPage{}, err
	}
	return page, nil
}

func (c *Client) feedURL(changedAt, next string) (string, error) {
	if next != "" {
		if parsed, err := url.Parse(next); err == nil && parsed.Scheme != "" && parsed.Host != "" {
			return next, nil
		}
	}

	u, err := url.Parse(c.baseURL + "/api/events/")
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("changed_at", changedAt)
	if next != "" {
		q.Set("cursor", next)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type seatsResponse struct {
	Seats []string `json:"seats"`
}

// Seats returns the seats still available for an event.
func (c *Client) Seats(ctx context.Context, eventID uuid.UUID) ([]string, error) {
	var resp seatsResponse
	if err := c.do(ctx, http.MethodGet, c.eventURL(eventID, "seats"), nil, &resp); err != nil {
		return nil, err
	}
	if resp.Seats == nil {
		return []string{}, nil
	}
	return resp.Seats, nil
}

// RegisterRequest is the attendee payload sent to the provider.
type RegisterRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Seat      string `json:"seat"`
}

type registerResponse struct {
	TicketID string `json:"ticket_id"`
}

// Register books a seat upstream and returns the provider's ticket id. The
// call is irreversible from this service's point of view.
func (c *Client) Register(ctx context.Context, eventID uuid.UUID, req RegisterRequest) (uuid.UUID, error) {
	var resp registerResponse
	if err := c.do(ctx, http.MethodPost, c.eventURL(eventID, "register"), req, &resp); err != nil {
		return uuid.Nil, err
	}
	ticketID, err := uuid.Parse(strings.TrimSpace(resp.TicketID))
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "events provider returned an invalid ticket id")
	}
	return ticketID, nil
}

// Unregister cancels a ticket upstream.
func (c *Client) Unregister(ctx context.Context, eventID, providerTicketID uuid.UUID) error {
	body := map[string]string{"ticket_id": providerTicketID.String()}
	return c.do(ctx, http.MethodDelete, c.eventURL(eventID, "unregister"), body, nil)
}

func (c *Client) eventURL(eventID uuid.UUID, action string) string {
	return fmt.Sprintf("%s/api/events/%s/%s/", c.baseURL, eventID, action)
}

// do runs one request through the breaker. Rejections (4xx) come back as
// UPSTREAM_REJECTED carrying the provider's status, everything else as
// DEPENDENCY_ERROR.
func (c *Client) do(ctx context.Context, method, target string, body any, out any) error {
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.roundTrip(ctx, method, target, body, out)
	})
	if err == nil {
		return nil
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if statusErr.Retryable() {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, unavailableMessage)
		}
		return pkgerrors.Wrap(pkgerrors.CodeUpstreamRejected, err, statusErr.Message()).
			WithStatus(statusErr.StatusCode).
			WithDetails(map[string]any{"upstream_status": statusErr.StatusCode})
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, unavailableMessage)
}

func (c *Client) roundTrip(ctx context.Context, method, target string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal provider request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build provider request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode provider response: %w", err)
	}
	return nil
}
