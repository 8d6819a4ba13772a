package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"sort"
)

// QuoteNotice is a new quote request as shown to the site owner.
type QuoteNotice struct {
	SiteName string
	QuoteID  string
	Name     string
	Email    string
	Phone    string
	Fields   map[string]string
}

type EscalationNotice struct {
	SiteName    string
	Reason      string
	UserMessage string
	UserName    string
	UserPhone   string
}

type field struct {
	Key   string
	Value string
}

func (n QuoteNotice) sortedFields() []field {
	fields := make([]field, 0, len(n.Fields))
	for k, v := range n.Fields {
		fields = append(fields, field{Key: k, Value: v})
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].Key < fields[j].Key })
	return fields
}

func (s *Service) SendQuoteNotification(ctx context.Context, notice QuoteNotice) error {
	to := s.NotifyTo()
	if to == "" {
		return fmt.Errorf("email: no notification recipient")
	}
	data := struct {
		QuoteNotice
		Details []field
	}{notice, notice.sortedFields()}

	html, err := renderTemplate(quoteEmailTemplate, data)
	if err != nil {
		return fmt.Errorf("render quote template: %w", err)
	}
	return s.Send(ctx, Message{
		To:      []string{to},
		Subject: fmt.Sprintf("New quote request from %s", notice.Name),
		HTML:    html,
		Text:    fmt.Sprintf("New quote request %s from %s <%s> %s", notice.QuoteID, notice.Name, notice.Email, notice.Phone),
	})
}

func (s *Service) SendEscalationNotification(ctx context.Context, notice EscalationNotice) error {
	to := s.NotifyTo()
	if to == "" {
		return fmt.Errorf("email: no notification recipient")
	}
	html, err := renderTemplate(escalationEmailTemplate, notice)
	if err != nil {
		return fmt.Errorf("render escalation template: %w", err)
	}
	return s.Send(ctx, Message{
		To:      []string{to},
		Subject: "Chat escalation: " + notice.Reason,
		HTML:    html,
		Text:    fmt.Sprintf("Escalation (%s): %s", notice.Reason, notice.UserMessage),
	})
}

func renderTemplate(tmpl string, data any) (string, error) {
	t := template.Must(template.New("email").Parse(tmpl))
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const quoteEmailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>New quote request</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #d97706; padding-bottom: 10px; margin-bottom: 20px; }
        table { border-collapse: collapse; width: 100%; }
        td { padding: 6px 8px; border-bottom: 1px solid #eee; vertical-align: top; }
        td.key { font-weight: bold; width: 35%; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.SiteName}}</h1>
    </div>

    <h2>New quote request</h2>

    <table>
        <tr><td class="key">Name</td><td>{{.Name}}</td></tr>
        <tr><td class="key">Email</td><td>{{.Email}}</td></tr>
        {{if .Phone}}<tr><td class="key">Phone</td><td>{{.Phone}}</td></tr>{{end}}
        {{range .Details}}<tr><td class="key">{{.Key}}</td><td>{{.Value}}</td></tr>
        {{end}}
    </table>

    <div class="footer">
        <p>Reference {{.QuoteID}}. Manage this request from the admin dashboard.</p>
    </div>
</body>
</html>`

const escalationEmailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Chat escalation</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #d97706; padding-bottom: 10px; margin-bottom: 20px; }
        .warning { background: #fff3cd; padding: 12px; border-radius: 4px; margin: 20px 0; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.SiteName}}</h1>
    </div>

    <h2>A visitor asked for a human</h2>

    <div class="warning">
        <strong>Reason:</strong> {{.Reason}}
    </div>

    <p><strong>Message:</strong> {{.UserMessage}}</p>
    {{if .UserName}}<p><strong>Name:</strong> {{.UserName}}</p>{{end}}
    {{if .UserPhone}}<p><strong>Phone:</strong> {{.UserPhone}}</p>{{end}}
</body>
</html>`
