package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// webhookEnvelope is the body POSTed to the webhook.
type webhookEnvelope struct {
	Kind       string          `json:"kind"`
	Recipients []string        `json:"recipients"`
	SentAt     time.Time       `json:"sent_at"`
	Payload    json.RawMessage `json:"payload"`
}

// WebhookConfig configures the webhook notifier.
type WebhookConfig struct {
	URL              string
	Timeout          time.Duration
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// WebhookNotifier POSTs notifications as JSON behind a circuit breaker so a
// dead endpoint fails fast instead of stalling the outbox relay.
type WebhookNotifier struct {
	url     string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewWebhookNotifier builds a WebhookNotifier.
func NewWebhookNotifier(cfg WebhookConfig, logger *zap.Logger) *WebhookNotifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	threshold := cfg.FailureThreshold

	settings := gobreaker.Settings{
		Name:        "notify-webhook",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &WebhookNotifier{
		url:     cfg.URL,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  logger,
	}
}

// Notify posts the notification. An open breaker returns gobreaker.ErrOpenState.
func (n *WebhookNotifier) Notify(ctx context.Context, kind string, recipients []string, payload json.RawMessage) error {
	_, err := n.breaker.Execute(func() (interface{}, error) {
		return nil, n.post(ctx, webhookEnvelope{Kind: kind, Recipients: recipients, SentAt: time.Now().UTC(), Payload: payload})
	})
	return err
}

// State reports the breaker state.
func (n *WebhookNotifier) State() gobreaker.State {
	return n.breaker.State()
}

func (n *WebhookNotifier) post(ctx context.Context, envelope webhookEnvelope) error {
	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encode webhook body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook responded %d", resp.StatusCode)
	}
	return nil
}
