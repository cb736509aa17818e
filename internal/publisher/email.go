package publisher

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailPublisher mails the Markdown document via SMTP.
type EmailPublisher struct {
	host     string
	port     int
	username string
	password string
	from     string
	to       []string
	send     sendMailFunc
}

func NewEmailPublisher(host string, port int, username, password, from string, to []string) *EmailPublisher {
	return &EmailPublisher{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
		to:       to,
		send:     smtp.SendMail,
	}
}

func (p *EmailPublisher) Name() string { return "email" }

func (p *EmailPublisher) Publish(_ context.Context, report *Report) error {
	addr := fmt.Sprintf("%s:%d", p.host, p.port)

	var auth smtp.Auth
	if p.username != "" {
		auth = smtp.PlainAuth("", p.username, p.password, p.host)
	}

	if err := p.send(addr, auth, p.from, p.to, buildMessage(p.from, p.to, report)); err != nil {
		return fmt.Errorf("email: failed to send: %w", err)
	}
	return nil
}

func subject(report *Report) string {
	b := report.Briefing
	n := b.Total()
	if n == 0 {
		return b.Title() + ": no new papers"
	}
	if n == 1 {
		return b.Title() + ": 1 new paper"
	}
	return fmt.Sprintf("%s: %d new papers", b.Title(), n)
}

func buildMessage(from string, to []string, report *Report) []byte {
	body := strings.ReplaceAll(report.Markdown, "\r\n", "\n")
	body = strings.ReplaceAll(body, "\n", "\r\n")

	var sb strings.Builder
	fmt.Fprintf(&sb, "From: %s\r\n", from)
	fmt.Fprintf(&sb, "To: %s\r\n", strings.Join(to, ","))
	fmt.Fprintf(&sb, "Subject: %s\r\n", subject(report))
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/markdown; charset=\"UTF-8\"\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(body)
	return []byte(sb.String())
}
