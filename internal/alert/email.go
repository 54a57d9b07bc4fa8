package alert

import (
	"context"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/vigilhq/vigil/internal/config"
	"github.com/vigilhq/vigil/pkg/api"
)

type (
	// EmailChannel delivers HTML incident notifications over SMTP
	EmailChannel struct {
		cfg          config.SMTPConfig
		dashboardURL string
	}

	emailData struct {
		Heading      string
		Accent       string
		Incident     *api.Incident
		Flow         *api.Flow
		FailedStep   *api.Step
		Duration     string
		DashboardURL string
	}
)

var _ Channel = (*EmailChannel)(nil)

var emailBody = template.Must(template.New("incident").Parse(`<html>
<body style="font-family: sans-serif; color: #1f2933;">
  <h2 style="color: {{.Accent}};">{{.Heading}}</h2>
  <p>{{.Incident.Description}}</p>
  <table cellpadding="6" style="border-collapse: collapse;">
    <tr><td><b>Flow</b></td><td>{{.Flow.Name}}</td></tr>
    <tr><td><b>Severity</b></td><td>{{.Incident.Severity}}</td></tr>
    {{- if .FailedStep}}
    <tr><td><b>Failed step</b></td>
        <td>{{.FailedStep.Position}}. {{.FailedStep.Name}}</td></tr>
    {{- end}}
    <tr><td><b>Opened</b></td><td>{{.Incident.OpenedAt.Format "2006-01-02 15:04:05 MST"}}</td></tr>
    {{- if .Duration}}
    <tr><td><b>Duration</b></td><td>{{.Duration}}</td></tr>
    {{- end}}
  </table>
  {{- if .DashboardURL}}
  <p><a href="{{.DashboardURL}}/incidents/{{.Incident.ID}}">View in dashboard</a></p>
  {{- end}}
  <p style="color: #7b8794; font-size: 12px;">vigil synthetic monitoring</p>
</body>
</html>`))

// NewEmailChannel creates an SMTP-backed email channel
func NewEmailChannel(cfg config.SMTPConfig, dashboardURL string) *EmailChannel {
	return &EmailChannel{
		cfg:          cfg,
		dashboardURL: dashboardURL,
	}
}

func (c *EmailChannel) Name() string {
	return "email"
}

func (c *EmailChannel) Send(ctx context.Context, n *Notification) error {
	msg := mail.NewMsg()
	if err := msg.From(c.cfg.From); err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}
	if err := msg.To(recipients(c.cfg.To)...); err != nil {
		return fmt.Errorf("invalid recipient: %w", err)
	}
	msg.Subject(c.subject(n))

	var body strings.Builder
	if err := emailBody.Execute(&body, c.data(n)); err != nil {
		return fmt.Errorf("rendering email: %w", err)
	}
	msg.SetBodyString(mail.TypeTextHTML, body.String())

	client, err := c.newClient()
	if err != nil {
		return err
	}
	return client.DialAndSendWithContext(ctx, msg)
}

func (c *EmailChannel) newClient() (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(c.cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if c.cfg.User != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(c.cfg.User),
			mail.WithPassword(c.cfg.Password))
	}
	return mail.NewClient(c.cfg.Host, opts...)
}

// recipients splits the comma-separated ALERT_EMAIL_TO value
func recipients(to string) []string {
	parts := strings.Split(to, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func (c *EmailChannel) subject(n *Notification) string {
	if n.Kind == KindResolved {
		return fmt.Sprintf("[vigil] Resolved: %s", n.Incident.Title)
	}
	return fmt.Sprintf("[vigil] [%s] %s",
		strings.ToUpper(string(n.Incident.Severity)), n.Incident.Title)
}

func (c *EmailChannel) data(n *Notification) *emailData {
	d := &emailData{
		Incident:     n.Incident,
		Flow:         n.Flow,
		FailedStep:   n.FailedStep,
		DashboardURL: c.dashboardURL,
	}
	if n.Kind == KindResolved {
		d.Heading = "Incident resolved"
		d.Accent = "#36a64f"
		if n.Incident.ResolvedAt != nil {
			d.Duration = n.Incident.ResolvedAt.
				Sub(n.Incident.OpenedAt).Round(time.Second).String()
		}
	} else {
		d.Heading = "Incident opened"
		d.Accent = "#dc3545"
	}
	return d
}
