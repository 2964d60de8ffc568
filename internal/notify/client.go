// Package notify implements the outbound side-effect adapters: HMAC-signed
// webhooks to the order store, the notification channel, and the
// photo-capture collector, plus log-only fallbacks for unconfigured
// collaborators.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/wastehaul/dispatchd/internal/metrics"
)

const defaultTimeout = 30 * time.Second

// MetricsSink defines the interface for recording webhook metrics.
// All methods must be non-blocking and fire-and-forget.
type MetricsSink interface {
	WebhookSendCompleted(target string, statusClass string, duration time.Duration)
}

// Client posts JSON payloads with an HMAC signature, shared by all
// side-effect adapters. A per-endpoint circuit breaker sheds load from
// collaborators that are consistently failing.
type Client struct {
	http    *http.Client
	secret  string
	timeout time.Duration
	breaker *Breaker    // optional, nil = disabled
	metrics MetricsSink // optional, nil = disabled
}

func NewClient(secret string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		http:    &http.Client{},
		secret:  secret,
		timeout: timeout,
	}
}

// WithBreaker enables the per-endpoint circuit breaker.
func (c *Client) WithBreaker(threshold int, cooldown time.Duration) *Client {
	c.breaker = NewBreaker(threshold, cooldown)
	return c
}

// WithMetrics attaches a metrics sink to the client.
func (c *Client) WithMetrics(sink MetricsSink) *Client {
	c.metrics = sink
	return c
}

// post sends one signed JSON request. target is a bounded label for
// metrics ("order_status", "notifier", "photo").
func (c *Client) post(ctx context.Context, target, url string, payload any) error {
	if c.breaker != nil {
		if err := c.breaker.Allow(url); err != nil {
			return fmt.Errorf("%s: %w", target, err)
		}
	}

	start := time.Now()
	statusCode, err := c.send(ctx, url, payload)
	duration := time.Since(start)

	if c.metrics != nil {
		c.metrics.WebhookSendCompleted(target, metrics.ClassifyStatus(statusCode, err), duration)
	}

	success := err == nil && statusCode >= 200 && statusCode < 300
	if c.breaker != nil {
		if success {
			c.breaker.RecordSuccess(url)
		} else {
			c.breaker.RecordFailure(url)
		}
	}

	if err != nil {
		return fmt.Errorf("%s: %w", target, err)
	}
	if !success {
		return fmt.Errorf("%s: unexpected status %d", target, statusCode)
	}
	return nil
}

func (c *Client) send(ctx context.Context, url string, payload any) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal: %w", err)
	}

	ctxTimeout, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctxTimeout, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.secret != "" {
		req.Header.Set("X-Dispatchd-Signature", computeSignature(c.secret, body))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()

	return resp.StatusCode, nil
}

func computeSignature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature is for receivers to verify incoming webhooks.
func VerifySignature(secret string, body []byte, signature string) bool {
	expected := computeSignature(secret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
