package provider

import "context"

// Envelope carries the SMTP envelope and, for providers that log in per send, the mailbox login.
type Envelope struct {
	From       string
	Recipients []string
	Username   string
	Password   string
}

type EmailProvider interface {
	SendRaw(ctx context.Context, env Envelope, raw []byte) error
}
