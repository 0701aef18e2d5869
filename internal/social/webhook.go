package social

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"postpilot/internal/core"
)

// StatusError is a non-2xx answer from the webhook.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook returned status %d: %s", e.Code, e.Body)
}

// WebhookConfig configures a WebhookPoster.
type WebhookConfig struct {
	URL   string
	Token string

	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// BreakerDelay is how long the breaker stays open before probing again.
	BreakerDelay time.Duration
	Timeout      time.Duration
}

// WebhookPoster hands posts to an external publishing service over HTTP.
// Requests are retried with backoff and guarded by a circuit breaker so a
// dead endpoint fails fast instead of stalling every tick.
type WebhookPoster struct {
	cfg      WebhookConfig
	client   *http.Client
	executor failsafe.Executor[string]
}

type webhookRequest struct {
	UserID    string   `json:"user_id"`
	Platform  string   `json:"platform"`
	Content   string   `json:"content"`
	MediaURLs []string `json:"media_urls,omitempty"`
}

type webhookResponse struct {
	ID string `json:"id"`
}

func NewWebhookPoster(cfg WebhookConfig) (*WebhookPoster, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook url is empty")
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 200 * time.Millisecond
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = 5 * time.Second
	}
	if cfg.BreakerDelay <= 0 {
		cfg.BreakerDelay = 30 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	retry := retrypolicy.NewBuilder[string]().
		WithBackoff(cfg.BaseDelay, cfg.MaxDelay).
		WithMaxRetries(cfg.MaxRetries).
		WithJitterFactor(0.1).
		HandleIf(func(_ string, err error) bool { return retryable(err) }).
		Build()
	breaker := circuitbreaker.NewBuilder[string]().
		WithFailureThresholdRatio(5, 10).
		WithDelay(cfg.BreakerDelay).
		WithSuccessThreshold(1).
		HandleIf(func(_ string, err error) bool { return retryable(err) }).
		Build()

	return &WebhookPoster{
		cfg:      cfg,
		client:   &http.Client{Timeout: cfg.Timeout},
		executor: failsafe.With[string](retry, breaker),
	}, nil
}

func (w *WebhookPoster) Publish(ctx context.Context, account core.AccountRef, content string, mediaURLs []string) (string, error) {
	payload, err := json.Marshal(webhookRequest{
		UserID:    account.UserID,
		Platform:  string(account.Platform),
		Content:   content,
		MediaURLs: mediaURLs,
	})
	if err != nil {
		return "", fmt.Errorf("encode webhook payload: %w", err)
	}
	id, err := w.executor.WithContext(ctx).Get(func() (string, error) {
		return w.send(ctx, payload)
	})
	if err != nil {
		if errors.Is(err, circuitbreaker.ErrOpen) {
			return "", fmt.Errorf("webhook unavailable: %w", err)
		}
		return "", err
	}
	return id, nil
}

func (w *WebhookPoster) send(ctx context.Context, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+w.cfg.Token)
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("read webhook response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
	}
	var out webhookResponse
	if len(body) > 0 {
		if err := json.Unmarshal(body, &out); err != nil {
			return "", fmt.Errorf("decode webhook response: %w", err)
		}
	}
	return out.ID, nil
}

// retryable reports transport errors, 5xx and 429 as worth another try.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var status *StatusError
	if errors.As(err, &status) {
		return status.Code >= 500 || status.Code == http.StatusTooManyRequests
	}
	return true
}
