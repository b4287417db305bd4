package clients

import (
	"context"
	"fmt"
	"strings"

	"gopkg.in/gomail.v2"
)

// Dialer is satisfied by *gomail.Dialer
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SmtpClient implements Client over SMTP
type SmtpClient struct {
	dialer Dialer
	from   string
}

func NewSmtpClient(host string, port int, username, password, from string) (*SmtpClient, error) {
	if strings.TrimSpace(host) == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if port <= 0 {
		port = 587
	}
	return &SmtpClient{
		dialer: gomail.NewDialer(host, port, username, password),
		from:   from,
	}, nil
}

// NewSmtpClientWithDialer is used with a preconfigured or fake dialer
func NewSmtpClientWithDialer(d Dialer, from string) *SmtpClient {
	return &SmtpClient{dialer: d, from: from}
}

func (c *SmtpClient) Channel() string {
	return ChannelEmail
}

func (c *SmtpClient) Send(ctx context.Context, msg *Message) error {
	if msg == nil || !strings.Contains(msg.Recipient, "@") {
		return fmt.Errorf("invalid email recipient")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	subject := msg.Subject
	if subject == "" {
		subject = "Notification"
	}
	m := gomail.NewMessage()
	m.SetHeader("From", c.from)
	m.SetHeader("To", msg.Recipient)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", msg.Body)
	if err := c.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send failed: %w", err)
	}
	return nil
}

func (c *SmtpClient) Close() error {
	return nil
}
