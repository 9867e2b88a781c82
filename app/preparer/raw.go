package preparer

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
)

type RawPreparer struct {
	fromName string
	now      func() time.Time
}

// NewRawPreparer creates a preparer that builds a plain-text MIME message with fromName as the From display name.
func NewRawPreparer(fromName string) *RawPreparer {
	return &RawPreparer{fromName: fromName, now: time.Now}
}

// Prepare builds a UTF-8 text/plain message with headers.
func (p *RawPreparer) Prepare(_ context.Context, msg *Message) error {
	if strings.TrimSpace(msg.From) == "" {
		return fmt.Errorf("from address is required")
	}
	if len(msg.Recipients) == 0 {
		return fmt.Errorf("recipient is required")
	}
	if strings.TrimSpace(msg.Subject) == "" {
		return fmt.Errorf("subject is required")
	}
	if strings.ContainsAny(msg.Subject, "\r\n") {
		return fmt.Errorf("subject contains invalid characters")
	}

	to := make([]*mail.Address, 0, len(msg.Recipients))
	for _, rcpt := range msg.Recipients {
		if strings.TrimSpace(rcpt) == "" {
			return fmt.Errorf("recipient is required")
		}
		to = append(to, &mail.Address{Address: rcpt})
	}

	var h mail.Header
	h.SetDate(p.now())
	h.SetAddressList("From", []*mail.Address{{Name: p.fromName, Address: msg.From}})
	h.SetAddressList("To", to)
	h.SetSubject(msg.Subject)
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	if err := h.GenerateMessageID(); err != nil {
		return fmt.Errorf("generate message id: %w", err)
	}

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return fmt.Errorf("create message writer: %w", err)
	}
	if _, err := w.Write([]byte(msg.Content)); err != nil {
		return fmt.Errorf("write message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close message writer: %w", err)
	}

	msg.Raw = buf.Bytes()
	return nil
}
