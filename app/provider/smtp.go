package provider

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// SMTPProvider submits messages to an SMTP relay, logging in with the envelope's mailbox credentials.
type SMTPProvider struct {
	host        string
	port        int
	dialTimeout time.Duration
	logger      logrus.FieldLogger
}

// NewSMTPProvider builds a provider for host:port. Port 465 uses implicit TLS, anything else STARTTLS when offered.
func NewSMTPProvider(host string, port int, logger logrus.FieldLogger) *SMTPProvider {
	return &SMTPProvider{
		host:        host,
		port:        port,
		dialTimeout: 10 * time.Second,
		logger:      logger,
	}
}

// SendRaw delivers raw to every envelope recipient in one SMTP transaction.
func (p *SMTPProvider) SendRaw(ctx context.Context, env Envelope, raw []byte) error {
	if len(env.Recipients) == 0 {
		return errors.New("recipient is required")
	}
	if len(raw) == 0 {
		return errors.New("raw content is required")
	}

	client, err := p.dial(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if env.Username != "" && env.Password != "" {
		if ok, _ := client.Extension("AUTH"); ok {
			if err := client.Auth(smtp.PlainAuth("", env.Username, env.Password, p.host)); err != nil {
				return fmt.Errorf("smtp auth: %w", err)
			}
		}
	}

	if err := client.Mail(env.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	for _, rcpt := range env.Recipients {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp rcpt %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close data: %w", err)
	}

	if err := client.Quit(); err != nil {
		p.logger.WithError(err).Warn("smtp quit failed")
	}
	return nil
}

func (p *SMTPProvider) dial(ctx context.Context) (*smtp.Client, error) {
	addr := net.JoinHostPort(p.host, strconv.Itoa(p.port))
	dialer := &net.Dialer{Timeout: p.dialTimeout}

	if p.port == 465 {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: p.host}}
		conn, err := tlsDialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("smtp tls dial %s: %w", addr, err)
		}
		client, err := smtp.NewClient(conn, p.host)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("smtp new client: %w", err)
		}
		return client, nil
	}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("smtp dial %s: %w", addr, err)
	}
	client, err := smtp.NewClient(conn, p.host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("smtp new client: %w", err)
	}
	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: p.host}); err != nil {
			client.Close()
			return nil, fmt.Errorf("smtp starttls: %w", err)
		}
	}
	return client, nil
}
