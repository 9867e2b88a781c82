package executor

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-mailtasks/app/mailbox"
	"github.com/vibast-solutions/ms-go-mailtasks/app/mailerr"
	"github.com/vibast-solutions/ms-go-mailtasks/app/templater"
)

type SendTemplated struct {
	sender   mailbox.Sender
	loader   templater.Loader
	renderer templater.Renderer
	logger   logrus.FieldLogger
}

// NewSendTemplated builds the templated campaign executor.
func NewSendTemplated(sender mailbox.Sender, loader templater.Loader, renderer templater.Renderer, logger logrus.FieldLogger) *SendTemplated {
	return &SendTemplated{sender: sender, loader: loader, renderer: renderer, logger: logger}
}

// Execute renders the template and sends it to all recipients in one message. A template
// failure returns before anything is sent.
func (e *SendTemplated) Execute(ctx context.Context, args SendTemplatedArgs) error {
	if len(args.Recipients) == 0 {
		return mailerr.Send("send templated", errors.New("at least one recipient is required"))
	}

	source, err := e.loader.Load(args.TemplatePath)
	if err != nil {
		return err
	}
	body, err := e.renderer.Render(source, args.Context)
	if err != nil {
		return err
	}

	if err := e.sender.Send(ctx, args.Credentials, args.Credentials.Username, args.Recipients, args.Subject, body); err != nil {
		return err
	}

	e.logger.WithFields(logrus.Fields{
		"recipients": args.Recipients,
		"subject":    args.Subject,
		"template":   args.TemplatePath,
	}).Info("templated email sent")
	return nil
}
