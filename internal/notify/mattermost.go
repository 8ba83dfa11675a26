package notify

import (
	"context"
	"fmt"
	"net/http"

	"pushdeploy/pkg/templates"
)

// MattermostSender posts markdown messages to a Mattermost incoming webhook.
// Token is optional; incoming webhooks usually carry their own key in the URL.
type MattermostSender struct {
	Token  string
	Client *http.Client
}

// Send implements Sender.
func (s *MattermostSender) Send(ctx context.Context, webhookURL string, msg Message) error {
	if webhookURL == "" {
		return fmt.Errorf("mattermost: %w (webhook URL missing)", ErrNotConfigured)
	}

	text, err := templates.Render(templates.Mattermost, msg)
	if err != nil {
		return fmt.Errorf("mattermost: %w", err)
	}

	payload := map[string]string{"text": text}
	if err := postJSON(ctx, httpClientOrDefault(s.Client), webhookURL, s.Token, payload); err != nil {
		return fmt.Errorf("mattermost: %w", err)
	}
	return nil
}
