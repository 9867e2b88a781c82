package provider

import (
	"context"

	"github.com/sirupsen/logrus"
)

// NoopProvider is a stubbed provider that pretends to send emails.
type NoopProvider struct {
	logger logrus.FieldLogger
}

// NewNoopProvider constructs a no-op email provider.
func NewNoopProvider(logger logrus.FieldLogger) *NoopProvider {
	return &NoopProvider{logger: logger}
}

// SendRaw logs the envelope and returns nil without sending.
func (p *NoopProvider) SendRaw(_ context.Context, env Envelope, raw []byte) error {
	p.logger.WithFields(logrus.Fields{
		"from":       env.From,
		"recipients": env.Recipients,
		"bytes":      len(raw),
	}).Debug("noop provider dropped message")
	return nil
}
