package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// WebhookChannel posts notifications as JSON to a fixed URL.
type WebhookChannel struct {
	client *resty.Client
	url    string
	now    func() time.Time
}

// NewWebhookChannel returns nil when url is empty.
func NewWebhookChannel(url string, timeout time.Duration) *WebhookChannel {
	if url == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "ticket-lifecycle-notifier")
	return &WebhookChannel{client: client, url: url, now: time.Now}
}

func (w *WebhookChannel) Name() string { return "webhook" }

func (w *WebhookChannel) Send(ctx context.Context, msg Message) error {
	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(newPayload(msg.Notification, w.now())).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook post: status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}
