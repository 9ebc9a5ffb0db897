package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"hyperflow/logger"
)

// Notifier posts alerts to a webhook. It is an explicit handle passed to
// the components that alert; a nil *Notifier is valid and drops every
// message, so callers never branch on configuration.
type Notifier struct {
	webhookURL string
	client     *http.Client
	log        *logger.Entry
}

func New(webhookURL string) *Notifier {
	if webhookURL == "" {
		return nil
	}
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		log:        logger.GetLogger().WithComponent("notifier"),
	}
}

// Notify sends content to the webhook. Failures are logged, never returned;
// alerting is best-effort.
func (n *Notifier) Notify(ctx context.Context, content string) {
	if n == nil {
		return
	}

	payload, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		n.log.WithError(err).Error("Failed to encode notification")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(payload))
	if err != nil {
		n.log.WithError(err).Error("Failed to build notification request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.log.WithError(err).Error("Failed to send notification")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		n.log.WithError(fmt.Errorf("webhook returned status %d", resp.StatusCode)).
			Error("Notification rejected")
	}
}
