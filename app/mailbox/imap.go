package mailbox

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/mail"
	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-mailtasks/app/mailerr"
	"github.com/vibast-solutions/ms-go-mailtasks/app/preparer"
	"github.com/vibast-solutions/ms-go-mailtasks/app/provider"
)

type imapClient interface {
	Login(username, password string) commandWaiter
	Logout() commandWaiter
	Close() error
	Select(mailbox string, options *imap.SelectOptions) selectWaiter
	UIDSearch(criteria *imap.SearchCriteria, options *imap.SearchOptions) searchWaiter
	Fetch(numSet imap.NumSet, options *imap.FetchOptions) fetchWaiter
	Copy(numSet imap.NumSet, mailbox string) copyWaiter
	Store(numSet imap.NumSet, store *imap.StoreFlags, options *imap.StoreOptions) fetchWaiter
	Expunge() expungeWaiter
}

type commandWaiter interface{ Wait() error }
type selectWaiter interface {
	Wait() (*imap.SelectData, error)
}
type searchWaiter interface {
	Wait() (*imap.SearchData, error)
}
type fetchWaiter interface {
	Collect() ([]*imapclient.FetchMessageBuffer, error)
	Close() error
}
type copyWaiter interface {
	Wait() (*imap.CopyData, error)
}
type expungeWaiter interface{ Close() error }

// IMAPTransport reads folders over IMAP and sends through an EmailProvider.
type IMAPTransport struct {
	useTLS      bool
	dialTimeout time.Duration
	preparer    preparer.EmailPreparer
	provider    provider.EmailProvider
	logger      logrus.FieldLogger
	newClient   func(context.Context, Credentials) (imapClient, error)
}

// IMAPOption customizes transport behavior.
type IMAPOption func(*IMAPTransport)

// WithIMAPTLS toggles implicit TLS (port 993 style). When off, STARTTLS is used.
func WithIMAPTLS(useTLS bool) IMAPOption {
	return func(t *IMAPTransport) {
		t.useTLS = useTLS
	}
}

// WithIMAPDialTimeout overrides the socket dial timeout.
func WithIMAPDialTimeout(timeout time.Duration) IMAPOption {
	return func(t *IMAPTransport) {
		if timeout > 0 {
			t.dialTimeout = timeout
		}
	}
}

func withIMAPClientFactory(factory func(context.Context, Credentials) (imapClient, error)) IMAPOption {
	return func(t *IMAPTransport) {
		t.newClient = factory
	}
}

// NewIMAPTransport returns a transport that builds messages with prep and hands them to prov.
func NewIMAPTransport(prep preparer.EmailPreparer, prov provider.EmailProvider, logger logrus.FieldLogger, opts ...IMAPOption) *IMAPTransport {
	t := &IMAPTransport{
		useTLS:      true,
		dialTimeout: 10 * time.Second,
		preparer:    prep,
		provider:    prov,
		logger:      logger,
	}
	t.newClient = t.defaultClientFactory
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Connect dials the server and logs in. Dial failures are network errors, login failures auth errors.
func (t *IMAPTransport) Connect(ctx context.Context, creds Credentials) (Session, error) {
	if creds.Username == "" || creds.Secret == "" {
		return nil, mailerr.Auth("imap login", errors.New("username and secret are required"))
	}
	if err := ctx.Err(); err != nil {
		return nil, mailerr.Network("imap connect", err)
	}

	client, err := t.newClient(ctx, creds)
	if err != nil {
		return nil, mailerr.Network("imap connect "+creds.Addr(), err)
	}

	if err := client.Login(creds.Username, creds.Secret).Wait(); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			t.logger.WithError(closeErr).Debug("imap close after failed login")
		}
		return nil, mailerr.Auth("imap login "+creds.Username, err)
	}

	return &imapSession{
		transport: t,
		client:    client,
		creds:     creds,
		logger:    t.logger.WithFields(creds.Fields()),
	}, nil
}

// Send builds a plain-text message and submits it through the provider, logging in as creds.
func (t *IMAPTransport) Send(ctx context.Context, creds Credentials, from string, to []string, subject string, body string) error {
	raw, err := t.preparer.Prepare(ctx, from, to, subject, body)
	if err != nil {
		return mailerr.Send("prepare message", err)
	}
	env := provider.Envelope{
		From:       from,
		Recipients: to,
		Username:   creds.Username,
		Password:   creds.Secret,
	}
	if err := t.provider.SendRaw(ctx, env, raw); err != nil {
		return mailerr.Send("send message", err)
	}
	t.logger.WithFields(creds.Fields()).WithFields(logrus.Fields{"recipients": to, "subject": subject}).Info("email sent")
	return nil
}

// defaultClientFactory dials the server. IMAP commands do not observe ctx and the client
// manages its own socket deadlines, so the connection is closed once ctx is done.
func (t *IMAPTransport) defaultClientFactory(ctx context.Context, creds Credentials) (imapClient, error) {
	if creds.Host == "" {
		return nil, errors.New("imap server host is required")
	}
	port := creds.Port
	if port == 0 {
		port = 993
		if !t.useTLS {
			port = 143
		}
	}
	addr := net.JoinHostPort(creds.Host, strconv.Itoa(port))

	dialer := &net.Dialer{Timeout: t.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })

	if t.useTLS {
		tlsConn := tls.Client(conn, &tls.Config{ServerName: creds.Host, NextProtos: []string{"imap"}})
		return &imapClientWrapper{Client: imapclient.New(tlsConn, nil), stop: stop}, nil
	}
	client, err := imapclient.NewStartTLS(conn, &imapclient.Options{TLSConfig: &tls.Config{ServerName: creds.Host}})
	if err != nil {
		stop()
		return nil, err
	}
	return &imapClientWrapper{Client: client, stop: stop}, nil
}

type imapSession struct {
	transport *IMAPTransport
	client    imapClient
	creds     Credentials
	logger    logrus.FieldLogger
	selected  string
}

// ListUnread selects folder and fetches every message without \Seen. The fetch is not a
// peek, so servers mark the returned messages as read.
func (s *imapSession) ListUnread(ctx context.Context, folder string) ([]MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, mailerr.Network("imap list", err)
	}
	if _, err := s.client.Select(folder, nil).Wait(); err != nil {
		return nil, mailerr.Folder("imap select "+folder, err)
	}
	s.selected = folder

	searchData, err := s.client.UIDSearch(&imap.SearchCriteria{NotFlag: []imap.Flag{imap.FlagSeen}}, nil).Wait()
	if err != nil {
		return nil, mailerr.Folder("imap search "+folder, err)
	}
	uids := searchData.AllUIDs()
	s.logger.WithFields(logrus.Fields{"folder": folder, "count": len(uids)}).Info("found unread messages")
	if len(uids) == 0 {
		return nil, nil
	}

	bodySection := &imap.FetchItemBodySection{}
	buffers, err := s.client.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		UID:         true,
		Envelope:    true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}).Collect()
	if err != nil {
		return nil, mailerr.Network("imap fetch "+folder, err)
	}

	refs := make([]MessageRef, 0, len(buffers))
	for _, buf := range buffers {
		ref := MessageRef{ID: strconv.FormatUint(uint64(buf.UID), 10)}
		if buf.Envelope != nil {
			ref.Subject = buf.Envelope.Subject
			if len(buf.Envelope.From) > 0 {
				ref.Sender = buf.Envelope.From[0].Addr()
			}
		}
		ref.Body = textBody(buf.FindBodySection(bodySection))
		refs = append(refs, ref)
	}
	return refs, nil
}

// Send builds a plain-text message and submits it through the configured provider.
func (s *imapSession) Send(ctx context.Context, from string, to []string, subject string, body string) error {
	return s.transport.Send(ctx, s.creds, from, to, subject, body)
}

// Move copies the message to targetFolder, flags the original \Deleted and expunges the selected folder.
func (s *imapSession) Move(ctx context.Context, id string, targetFolder string) error {
	if s.selected == "" {
		return mailerr.Move("imap move", errors.New("no folder selected"))
	}
	if err := ctx.Err(); err != nil {
		return mailerr.Move("imap move", err)
	}
	uid, err := strconv.ParseUint(id, 10, 32)
	if err != nil {
		return mailerr.Move("imap move", fmt.Errorf("invalid message id %q: %w", id, err))
	}
	uidSet := imap.UIDSetNum(imap.UID(uid))

	if _, err := s.client.Copy(uidSet, targetFolder).Wait(); err != nil {
		return mailerr.Move("imap copy "+id+" to "+targetFolder, err)
	}
	store := &imap.StoreFlags{Op: imap.StoreFlagsAdd, Silent: true, Flags: []imap.Flag{imap.FlagDeleted}}
	if err := s.client.Store(uidSet, store, nil).Close(); err != nil {
		return mailerr.Move("imap store deleted "+id, err)
	}
	if err := s.client.Expunge().Close(); err != nil {
		return mailerr.Move("imap expunge "+s.selected, err)
	}
	s.logger.WithFields(logrus.Fields{"id": id, "from": s.selected, "to": targetFolder}).Info("message moved")
	return nil
}

// Close logs out and closes the connection.
func (s *imapSession) Close() error {
	logoutErr := s.client.Logout().Wait()
	closeErr := s.client.Close()
	if logoutErr != nil {
		return mailerr.Network("imap logout", logoutErr)
	}
	if closeErr != nil {
		return mailerr.Network("imap close", closeErr)
	}
	return nil
}

// textBody returns the first text/plain part of raw, or the whole body for single-part messages.
func textBody(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	r, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return ""
	}
	defer r.Close()

	for {
		part, err := r.NextPart()
		if err != nil {
			return ""
		}
		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := h.ContentType()
		if contentType != "" && !strings.EqualFold(contentType, "text/plain") {
			continue
		}
		body, err := io.ReadAll(part.Body)
		if err != nil {
			return ""
		}
		return string(body)
	}
}

type imapClientWrapper struct {
	*imapclient.Client
	stop func() bool
}

func (w *imapClientWrapper) Close() error {
	if w.stop != nil {
		w.stop()
	}
	return w.Client.Close()
}

func (w *imapClientWrapper) Login(username, password string) commandWaiter {
	return w.Client.Login(username, password)
}
func (w *imapClientWrapper) Logout() commandWaiter { return w.Client.Logout() }
func (w *imapClientWrapper) Select(mailbox string, options *imap.SelectOptions) selectWaiter {
	return w.Client.Select(mailbox, options)
}
func (w *imapClientWrapper) UIDSearch(criteria *imap.SearchCriteria, options *imap.SearchOptions) searchWaiter {
	return w.Client.UIDSearch(criteria, options)
}
func (w *imapClientWrapper) Fetch(numSet imap.NumSet, options *imap.FetchOptions) fetchWaiter {
	return w.Client.Fetch(numSet, options)
}
func (w *imapClientWrapper) Copy(numSet imap.NumSet, mailbox string) copyWaiter {
	return w.Client.Copy(numSet, mailbox)
}
func (w *imapClientWrapper) Store(numSet imap.NumSet, store *imap.StoreFlags, options *imap.StoreOptions) fetchWaiter {
	return w.Client.Store(numSet, store, options)
}
func (w *imapClientWrapper) Expunge() expungeWaiter { return w.Client.Expunge() }
