package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Config Webhook 客户端配置
type Config struct {
	DefaultURL string        // fallback endpoint when a notification has none
	AuthToken  string        // optional bearer token
	Timeout    time.Duration
	MaxRetries int
}

func DefaultConfig() *Config {
	return &Config{
		Timeout:    10 * time.Second,
		MaxRetries: 2,
	}
}

// Payload is the JSON body posted to the receiving endpoint.
type Payload struct {
	WorkOrderID     uint   `json:"work_order_id"`
	WorkOrderNumber string `json:"work_order_number,omitempty"`
	Kind            string `json:"kind"`
	Title           string `json:"title"`
	Body            string `json:"body,omitempty"`
	RecipientID     *uint  `json:"recipient_id,omitempty"`
	SentAt          string `json:"sent_at"`
}

// Client Webhook 事件推送客户端
type Client struct {
	config     *Config
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewClient(config *Config, logger *logrus.Logger) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

// Send posts the payload to the given URL (or the configured default) and
// retries transient failures up to MaxRetries times.
func (c *Client) Send(ctx context.Context, url string, payload *Payload) error {
	if url == "" {
		url = c.config.DefaultURL
	}
	if url == "" {
		return fmt.Errorf("no webhook url configured")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	var lastErr error
	attempts := c.config.MaxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
		lastErr = c.post(ctx, url, body)
		if lastErr == nil {
			return nil
		}
		c.logger.Warnf("notify: webhook attempt %d/%d failed: %v", attempt+1, attempts, lastErr)
	}
	return fmt.Errorf("webhook delivery failed after %d attempts: %w", attempts, lastErr)
}

func (c *Client) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.AuthToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, string(snippet))
}
