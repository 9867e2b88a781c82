package executor

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-mailtasks/app/mailbox"
)

const AcknowledgementBody = "Hello,\n\n" +
	"Thank you for your email. We will get back to you shortly.\n\n" +
	"Best regards,\nEmail Control System"

// ReplyTracker remembers which messages already got a reply so a retried run can skip them.
type ReplyTracker interface {
	Replied(ctx context.Context, mailboxKey string, messageID string) (bool, error)
	MarkReplied(ctx context.Context, mailboxKey string, messageID string) error
}

type ReadAndReply struct {
	transport mailbox.Transport
	tracker   ReplyTracker
	logger    logrus.FieldLogger
}

// NewReadAndReply builds the auto-reply executor. tracker may be nil, in which case replies
// are at-least-once: a retry after a partial run answers the same messages again.
func NewReadAndReply(transport mailbox.Transport, tracker ReplyTracker, logger logrus.FieldLogger) *ReadAndReply {
	return &ReadAndReply{transport: transport, tracker: tracker, logger: logger}
}

// Execute replies to every unread message in args.Folder and returns the number of replies sent.
func (e *ReadAndReply) Execute(ctx context.Context, args ReadAndReplyArgs) (count int, err error) {
	folder := args.Folder
	if folder == "" {
		folder = DefaultFolder
	}
	logger := e.logger.WithFields(args.Credentials.Fields()).WithField("folder", folder)

	session, err := e.transport.Connect(ctx, args.Credentials)
	if err != nil {
		return 0, err
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			logger.WithError(closeErr).Warn("closing mailbox session failed")
		}
	}()

	messages, err := session.ListUnread(ctx, folder)
	if err != nil {
		return 0, err
	}

	mailboxKey := args.Credentials.Username + "/" + folder
	for _, msg := range messages {
		if e.tracker != nil {
			done, err := e.tracker.Replied(ctx, mailboxKey, msg.ID)
			if err != nil {
				return count, fmt.Errorf("check reply state for %s: %w", msg.ID, err)
			}
			if done {
				logger.WithField("id", msg.ID).Debug("already replied, skipping")
				continue
			}
		}

		subject := msg.Subject
		if subject == "" {
			subject = DefaultNoSubject
		}
		if err := session.Send(ctx, args.Credentials.Username, []string{msg.Sender}, "Re: "+subject, AcknowledgementBody); err != nil {
			return count, err
		}
		count++

		if e.tracker != nil {
			if err := e.tracker.MarkReplied(ctx, mailboxKey, msg.ID); err != nil {
				return count, fmt.Errorf("record reply for %s: %w", msg.ID, err)
			}
		}
	}

	logger.WithField("count", count).Info("replied to unread emails")
	return count, nil
}
