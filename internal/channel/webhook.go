package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/harunnryd/hanko/internal/contract"
	"github.com/harunnryd/hanko/internal/errors"
)

// WebhookNotifier is the fallback channel: it triggers an external
// workflow-automation webhook with the full contract payload. That
// automation renders the decision surface and makes the callback.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (w *WebhookNotifier) Name() string {
	return "webhook"
}

func (w *WebhookNotifier) Kind() contract.ChannelKind {
	return contract.ChannelWebhook
}

type webhookPayload struct {
	*contract.ApprovalContract
	CallbackURL string `json:"callback_url"`
}

func (w *WebhookNotifier) Dispatch(ctx context.Context, c *contract.ApprovalContract, callbackURL string) (*DispatchReceipt, error) {
	if w.url == "" {
		return nil, errors.DispatchFailed("webhook URL not configured")
	}

	body, err := json.Marshal(webhookPayload{ApprovalContract: c, CallbackURL: callbackURL})
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode webhook payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook unreachable: %v: %w", err, errors.ErrDispatchFailed)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return nil, fmt.Errorf("webhook rejected dispatch with status %d: %w", resp.StatusCode, errors.ErrDispatchFailed)
	}

	slog.Info("Approval request dispatched", "channel", "webhook", "approval_id", c.ApprovalID, "status", resp.StatusCode)
	return &DispatchReceipt{
		Channel: contract.ChannelWebhook,
		Ref:     c.ApprovalID,
		SentAt:  time.Now(),
	}, nil
}

func (w *WebhookNotifier) Health(ctx context.Context) error {
	if w.url == "" {
		return errors.Transient("webhook URL not configured")
	}
	return nil
}
