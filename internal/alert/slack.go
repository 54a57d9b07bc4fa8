package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vigilhq/vigil/pkg/api"
)

type (
	// SlackChannel posts incident notifications to an incoming webhook
	SlackChannel struct {
		webhookURL   string
		dashboardURL string
		client       *http.Client
	}

	slackMessage struct {
		Attachments []slackAttachment `json:"attachments"`
	}

	slackAttachment struct {
		Color  string       `json:"color"`
		Title  string       `json:"title"`
		Text   string       `json:"text,omitempty"`
		Fields []slackField `json:"fields,omitempty"`
		Footer string       `json:"footer"`
		Ts     int64        `json:"ts"`
	}

	slackField struct {
		Title string `json:"title"`
		Value string `json:"value"`
		Short bool   `json:"short"`
	}
)

var _ Channel = (*SlackChannel)(nil)

// NewSlackChannel creates a webhook-backed Slack channel
func NewSlackChannel(webhookURL, dashboardURL string) *SlackChannel {
	return &SlackChannel{
		webhookURL:   webhookURL,
		dashboardURL: dashboardURL,
		client:       &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *SlackChannel) Name() string {
	return "slack"
}

func (c *SlackChannel) Send(ctx context.Context, n *Notification) error {
	msg := c.render(n)
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return fmt.Errorf("webhook returned HTTP %d: %s",
			resp.StatusCode, detail)
	}
	return nil
}

func (c *SlackChannel) render(n *Notification) *slackMessage {
	att := slackAttachment{
		Color:  messageColor(n),
		Title:  messageTitle(n),
		Text:   n.Incident.Description,
		Footer: "vigil",
		Ts:     time.Now().Unix(),
	}

	att.Fields = []slackField{
		{Title: "Flow", Value: n.Flow.Name, Short: true},
		{Title: "Severity",
			Value: string(n.Incident.Severity), Short: true},
	}
	if n.FailedStep != nil {
		att.Fields = append(att.Fields, slackField{
			Title: "Failed Step",
			Value: fmt.Sprintf("%d. %s",
				n.FailedStep.Position, n.FailedStep.Name),
			Short: true,
		})
	}
	if n.Kind == KindResolved && n.Incident.ResolvedAt != nil {
		att.Fields = append(att.Fields, slackField{
			Title: "Duration",
			Value: n.Incident.ResolvedAt.
				Sub(n.Incident.OpenedAt).Round(time.Second).String(),
			Short: true,
		})
	}
	if c.dashboardURL != "" {
		att.Fields = append(att.Fields, slackField{
			Title: "Incident",
			Value: fmt.Sprintf("<%s/incidents/%s|View in dashboard>",
				c.dashboardURL, n.Incident.ID),
		})
	}
	return &slackMessage{Attachments: []slackAttachment{att}}
}

func messageTitle(n *Notification) string {
	if n.Kind == KindResolved {
		return fmt.Sprintf("✅ Resolved: %s", n.Incident.Title)
	}
	return fmt.Sprintf("🔥 %s", n.Incident.Title)
}

func messageColor(n *Notification) string {
	if n.Kind == KindResolved {
		return "#36a64f"
	}
	if n.Incident.Severity == api.SeverityCritical {
		return "#dc3545"
	}
	return "#ffc107"
}
