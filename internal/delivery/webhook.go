package delivery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultWebhookTimeout bounds a single webhook attempt. A webhook that does
// not answer promptly is a failed channel, not an error for the sender.
const DefaultWebhookTimeout = 3 * time.Second

// WebhookClient performs the single outbound call of the webhook channel.
type WebhookClient struct {
	client *http.Client
}

// NewWebhookClient creates a webhook client with the given per-attempt
// timeout (DefaultWebhookTimeout if zero).
func NewWebhookClient(timeout time.Duration) *WebhookClient {
	if timeout <= 0 {
		timeout = DefaultWebhookTimeout
	}
	return &WebhookClient{client: &http.Client{Timeout: timeout}}
}

// Deliver POSTs the notification frame to the agent's webhook URL. Any
// transport error or non-2xx status is a channel failure.
func (c *WebhookClient) Deliver(ctx context.Context, url string, frame []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(frame))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}
