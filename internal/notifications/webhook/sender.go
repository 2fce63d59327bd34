// Package webhook delivers SLA notifications as JSON POST requests.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/bissquit/fieldservice-sla/internal/notifications"
	"github.com/bissquit/fieldservice-sla/internal/sla"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultRateLimit = 5.0
	// maxErrorBody bounds how much of an error response is kept.
	maxErrorBody = 4 << 10
)

// Config holds webhook sender configuration.
type Config struct {
	URL     string
	Timeout time.Duration
	// RateLimit is the maximum number of requests per second.
	RateLimit float64
}

// Sender posts notifications to one webhook endpoint.
type Sender struct {
	config     Config
	name       string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewSender creates a webhook sender for config.URL.
func NewSender(config Config) (*Sender, error) {
	u, err := url.Parse(config.URL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("webhook sender: invalid url %q", config.URL)
	}

	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	if config.RateLimit <= 0 {
		config.RateLimit = defaultRateLimit
	}

	return &Sender{
		config: config,
		name:   "webhook:" + u.Host,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}, nil
}

// Name identifies the sender in logs and metrics.
func (s *Sender) Name() string {
	return s.name
}

// Payload is the JSON body posted for every notification.
type Payload struct {
	EventType  sla.EventKind `json:"event_type"`
	DeliveryID string        `json:"delivery_id"`
	Subject    string        `json:"subject"`
	Text       string        `json:"text"`
	Event      sla.Event     `json:"event"`
}

// Send posts the notification. Each attempt carries a new delivery_id.
func (s *Sender) Send(ctx context.Context, n notifications.Notification) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	body, err := json.Marshal(Payload{
		EventType:  n.Event.Kind,
		DeliveryID: uuid.NewString(),
		Subject:    n.Subject,
		Text:       n.Body,
		Event:      n.Event,
	})
	if err != nil {
		return &notifications.PermanentError{Message: fmt.Sprintf("marshal payload: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.URL, bytes.NewReader(body))
	if err != nil {
		return &notifications.PermanentError{Message: fmt.Sprintf("create request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return &notifications.RetryableError{Message: fmt.Sprintf("send request: %v", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	return s.handleResponse(resp)
}

func (s *Sender) handleResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		slog.Debug("webhook delivered", "sender", s.name, "status", resp.StatusCode)
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &notifications.RetryableError{Code: resp.StatusCode, Message: "rate limited"}
	case resp.StatusCode >= 500:
		return &notifications.RetryableError{
			Code:    resp.StatusCode,
			Message: fmt.Sprintf("server error: %s", string(body)),
		}
	case resp.StatusCode >= 400:
		return &notifications.PermanentError{
			Code:    resp.StatusCode,
			Message: fmt.Sprintf("rejected: %s", string(body)),
		}
	default:
		return &notifications.PermanentError{
			Code:    resp.StatusCode,
			Message: "unexpected status",
		}
	}
}
