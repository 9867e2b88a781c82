package executor

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-mailtasks/app/mailbox"
)

type PullFromSpam struct {
	transport  mailbox.Transport
	spamFolder string
	logger     logrus.FieldLogger
}

// NewPullFromSpam builds the spam triage executor. spamFolder is used when the arguments name none.
func NewPullFromSpam(transport mailbox.Transport, spamFolder string, logger logrus.FieldLogger) *PullFromSpam {
	if spamFolder == "" {
		spamFolder = DefaultSpamFolder
	}
	return &PullFromSpam{transport: transport, spamFolder: spamFolder, logger: logger}
}

// Execute moves unread spam whose subject contains the keyword (all unread spam when the keyword is
// unset) back to the target folder. A failed move is logged and skipped.
func (e *PullFromSpam) Execute(ctx context.Context, args PullFromSpamArgs) (moved int, err error) {
	spamFolder := args.SpamFolder
	if spamFolder == "" {
		spamFolder = e.spamFolder
	}
	target := args.TargetFolder
	if target == "" {
		target = DefaultTargetFolder
	}
	logger := e.logger.WithFields(args.Credentials.Fields()).WithField("folder", spamFolder)

	session, err := e.transport.Connect(ctx, args.Credentials)
	if err != nil {
		return 0, err
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			logger.WithError(closeErr).Warn("closing mailbox session failed")
		}
	}()

	messages, err := session.ListUnread(ctx, spamFolder)
	if err != nil {
		return 0, err
	}
	logger.WithField("count", len(messages)).Info("checking spam messages")

	for _, msg := range messages {
		if !matchesKeyword(msg.Subject, args.SubjectKeyword) {
			continue
		}
		if err := session.Move(ctx, msg.ID, target); err != nil {
			logger.WithError(err).WithField("id", msg.ID).Warn("could not move message, skipping")
			continue
		}
		moved++
	}

	logger.WithFields(logrus.Fields{"moved": moved, "target": target}).Info("pulled messages from spam")
	return moved, nil
}

// matchesKeyword is a case-sensitive substring match. A nil or empty keyword matches everything.
func matchesKeyword(subject string, keyword *string) bool {
	if keyword == nil || *keyword == "" {
		return true
	}
	return strings.Contains(subject, *keyword)
}
