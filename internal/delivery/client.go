// Package delivery posts finished captures to a category endpoint.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shehryarbajwa/pagestitch/internal/ratelimit"
	"github.com/shehryarbajwa/pagestitch/pkg/models"
)

const (
	DefaultAttempts = 3
	DefaultTimeout  = 15 * time.Second
	baseBackoff     = 500 * time.Millisecond
)

// Options configure a Client
type Options struct {
	Attempts   int
	Timeout    time.Duration
	HTTPClient *http.Client
	Sleep      func(context.Context, time.Duration) error
}

// Client POSTs JSON payloads, retrying transport failures with exponential
// backoff. Any HTTP response, successful or not, ends the attempts.
type Client struct {
	http     *http.Client
	attempts int
	timeout  time.Duration
	sleep    func(context.Context, time.Duration) error
}

// NewClient creates a delivery client
func NewClient(opts Options) *Client {
	if opts.Attempts <= 0 {
		opts.Attempts = DefaultAttempts
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Sleep == nil {
		opts.Sleep = ratelimit.Sleep
	}
	return &Client{
		http:     opts.HTTPClient,
		attempts: opts.Attempts,
		timeout:  opts.Timeout,
		sleep:    opts.Sleep,
	}
}

// BuildEndpoint appends the workflow API key as a query parameter
func BuildEndpoint(endpoint, apiKey string) string {
	if endpoint == "" || apiKey == "" {
		return endpoint
	}
	sep := "?"
	if strings.Contains(endpoint, "?") {
		sep = "&"
	}
	return endpoint + sep + "workflowApiKey=" + url.QueryEscape(apiKey)
}

// Backoff is the delay after failed attempt n, counting from 1
func Backoff(attempt int) time.Duration {
	return baseBackoff << (attempt - 1)
}

// Send posts payload, encoded as JSON, to endpoint
func (c *Client) Send(ctx context.Context, endpoint string, payload interface{}) (models.DeliveryResult, error) {
	if endpoint == "" {
		return models.DeliveryResult{}, errors.New("delivery endpoint is required")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return models.DeliveryResult{}, fmt.Errorf("encode payload: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		res, err := c.post(ctx, endpoint, body)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if ctx.Err() != nil || attempt == c.attempts {
			break
		}

		delay := Backoff(attempt)
		log.Printf("🔁 Delivery attempt %d failed (%v), retrying in %s", attempt, err, delay)
		if err := c.sleep(ctx, delay); err != nil {
			return models.DeliveryResult{}, err
		}
	}
	return models.DeliveryResult{}, fmt.Errorf("delivery failed after %d attempts: %w", c.attempts, lastErr)
}

func (c *Client) post(ctx context.Context, endpoint string, body []byte) (models.DeliveryResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return models.DeliveryResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return models.DeliveryResult{}, err
	}
	defer resp.Body.Close()

	text, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.DeliveryResult{}, fmt.Errorf("read response: %w", err)
	}
	return models.DeliveryResult{
		OK:           resp.StatusCode >= 200 && resp.StatusCode < 300,
		Status:       resp.StatusCode,
		ResponseText: string(text),
	}, nil
}
