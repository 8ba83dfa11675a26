package notify

import (
	"context"
	"fmt"
	"net/http"

	"pushdeploy/pkg/templates"
)

const (
	slackColorSuccess = "#36a64f"
	slackColorFailed  = "#ff0000"
)

type slackPayload struct {
	Attachments []slackAttachment `json:"attachments"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title"`
	Fields []slackField `json:"fields"`
	Footer string       `json:"footer"`
	Ts     int64        `json:"ts"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// SlackSender posts color-coded attachments to a Slack incoming webhook.
type SlackSender struct {
	Token  string
	Client *http.Client
}

// Send implements Sender.
func (s *SlackSender) Send(ctx context.Context, webhookURL string, msg Message) error {
	if s.Token == "" || webhookURL == "" {
		return fmt.Errorf("slack: %w (SLACK_TOKEN or webhook URL missing)", ErrNotConfigured)
	}

	details, err := templates.Render(templates.Slack, msg)
	if err != nil {
		return fmt.Errorf("slack: %w", err)
	}

	color := slackColorSuccess
	if !msg.Succeeded() {
		color = slackColorFailed
	}

	payload := slackPayload{
		Attachments: []slackAttachment{{
			Color: color,
			Title: "Deployment: " + msg.Project,
			Fields: []slackField{
				{Title: "Status", Value: msg.Status, Short: true},
				{Title: "Timestamp", Value: msg.Timestamp.Format("2006-01-02 15:04:05"), Short: true},
				{Title: "Details", Value: details, Short: false},
			},
			Footer: "pushdeploy",
			Ts:     msg.Timestamp.Unix(),
		}},
	}

	if err := postJSON(ctx, httpClientOrDefault(s.Client), webhookURL, s.Token, payload); err != nil {
		return fmt.Errorf("slack: %w", err)
	}
	return nil
}
