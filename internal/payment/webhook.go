package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// WebhookGateway posts each hand-off as JSON to a settlement endpoint. Any
// non-2xx response is an error.
type WebhookGateway struct {
	url    string
	client *http.Client
}

// NewWebhookGateway returns a [WebhookGateway] posting to url. A nil client
// selects [http.DefaultClient]; per-call deadlines come from the context.
func NewWebhookGateway(url string, client *http.Client) *WebhookGateway {
	if client == nil {
		client = http.DefaultClient
	}
	return &WebhookGateway{url: url, client: client}
}

// Submit implements [Gateway].
func (g *WebhookGateway) Submit(ctx context.Context, h Handoff) error {
	body, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("payment: webhook: encode: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("payment: webhook: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("payment: webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("payment: webhook: unexpected status %s", resp.Status)
	}
	return nil
}

var _ Gateway = (*WebhookGateway)(nil)
