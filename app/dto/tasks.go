package dto

import (
	"errors"
	"net/mail"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/vibast-solutions/ms-go-mailtasks/app/executor"
	"github.com/vibast-solutions/ms-go-mailtasks/app/mailbox"
)

var (
	ErrMissingCredentials = errors.New("username and password are required")
	ErrMissingRecipients  = errors.New("at least one recipient is required")
	ErrInvalidRecipient   = errors.New("recipients must be valid email addresses")
	ErrMissingSubject     = errors.New("subject is required")
	ErrMissingTemplate    = errors.New("template_path is required")
	ErrInvalidTemplate    = errors.New("template_path must be relative to the template directory")
	ErrInvalidPort        = errors.New("imap_port must be between 1 and 65535")
)

// MailboxRequest carries the mailbox login. Empty fields fall back to the server defaults.
type MailboxRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	IMAPHost string `json:"imap_host"`
	IMAPPort int    `json:"imap_port"`
}

type ReadAndReplyRequest struct {
	MailboxRequest
	Folder string `json:"folder"`
}

type SendTemplatedRequest struct {
	MailboxRequest
	Recipients   []string       `json:"recipients"`
	Subject      string         `json:"subject"`
	TemplatePath string         `json:"template_path"`
	Context      map[string]any `json:"context"`
}

type PullFromSpamRequest struct {
	MailboxRequest
	SubjectKeyword *string `json:"subject_keyword"`
	SpamFolder     string  `json:"spam_folder"`
	TargetFolder   string  `json:"target_folder"`
}

// ReadAndReplyFromEcho binds and normalizes a read-and-reply request.
func ReadAndReplyFromEcho(ctx echo.Context) (ReadAndReplyRequest, error) {
	var req ReadAndReplyRequest
	if err := ctx.Bind(&req); err != nil {
		return ReadAndReplyRequest{}, err
	}
	req.normalize()
	req.Folder = strings.TrimSpace(req.Folder)
	return req, nil
}

// SendTemplatedFromEcho binds and normalizes a templated send request.
func SendTemplatedFromEcho(ctx echo.Context) (SendTemplatedRequest, error) {
	var req SendTemplatedRequest
	if err := ctx.Bind(&req); err != nil {
		return SendTemplatedRequest{}, err
	}
	req.normalize()
	recipients := req.Recipients[:0]
	for _, r := range req.Recipients {
		if r = strings.TrimSpace(r); r != "" {
			recipients = append(recipients, r)
		}
	}
	req.Recipients = recipients
	req.Subject = strings.TrimSpace(req.Subject)
	req.TemplatePath = strings.TrimSpace(req.TemplatePath)
	return req, nil
}

// PullFromSpamFromEcho binds and normalizes a spam triage request.
func PullFromSpamFromEcho(ctx echo.Context) (PullFromSpamRequest, error) {
	var req PullFromSpamRequest
	if err := ctx.Bind(&req); err != nil {
		return PullFromSpamRequest{}, err
	}
	req.normalize()
	req.SpamFolder = strings.TrimSpace(req.SpamFolder)
	req.TargetFolder = strings.TrimSpace(req.TargetFolder)
	return req, nil
}

// Args validates the request and converts it to executor arguments.
func (r ReadAndReplyRequest) Args(defaults mailbox.Credentials) (executor.ReadAndReplyArgs, error) {
	creds, err := r.credentials(defaults)
	if err != nil {
		return executor.ReadAndReplyArgs{}, err
	}
	return executor.ReadAndReplyArgs{Credentials: creds, Folder: r.Folder}, nil
}

// Args validates the request and converts it to executor arguments.
func (r SendTemplatedRequest) Args(defaults mailbox.Credentials) (executor.SendTemplatedArgs, error) {
	creds, err := r.credentials(defaults)
	if err != nil {
		return executor.SendTemplatedArgs{}, err
	}
	if len(r.Recipients) == 0 {
		return executor.SendTemplatedArgs{}, ErrMissingRecipients
	}
	for _, recipient := range r.Recipients {
		if _, err := mail.ParseAddress(recipient); err != nil {
			return executor.SendTemplatedArgs{}, ErrInvalidRecipient
		}
	}
	if r.Subject == "" {
		return executor.SendTemplatedArgs{}, ErrMissingSubject
	}
	if r.TemplatePath == "" {
		return executor.SendTemplatedArgs{}, ErrMissingTemplate
	}
	if !filepath.IsLocal(r.TemplatePath) {
		return executor.SendTemplatedArgs{}, ErrInvalidTemplate
	}
	return executor.SendTemplatedArgs{
		Credentials:  creds,
		Recipients:   r.Recipients,
		Subject:      r.Subject,
		TemplatePath: r.TemplatePath,
		Context:      r.Context,
	}, nil
}

// Args validates the request and converts it to executor arguments.
func (r PullFromSpamRequest) Args(defaults mailbox.Credentials) (executor.PullFromSpamArgs, error) {
	creds, err := r.credentials(defaults)
	if err != nil {
		return executor.PullFromSpamArgs{}, err
	}
	return executor.PullFromSpamArgs{
		Credentials:    creds,
		SubjectKeyword: r.SubjectKeyword,
		SpamFolder:     r.SpamFolder,
		TargetFolder:   r.TargetFolder,
	}, nil
}

// credentials fills unset login fields from defaults. The password is only taken from
// defaults when the username is too, and a login borrowed from defaults always goes to the
// default server.
func (r MailboxRequest) credentials(defaults mailbox.Credentials) (mailbox.Credentials, error) {
	creds := mailbox.Credentials{
		Username: r.Username,
		Secret:   r.Password,
		Host:     r.IMAPHost,
		Port:     r.IMAPPort,
	}
	if creds.Username == "" && creds.Secret == "" {
		creds = defaults
	}
	if creds.Host == "" {
		creds.Host = defaults.Host
	}
	if creds.Port == 0 {
		creds.Port = defaults.Port
	}
	if creds.Username == "" || creds.Secret == "" {
		return mailbox.Credentials{}, ErrMissingCredentials
	}
	if creds.Port < 0 || creds.Port > 65535 {
		return mailbox.Credentials{}, ErrInvalidPort
	}
	return creds, nil
}

// normalize trims whitespace from the login fields. The password is kept verbatim.
func (r *MailboxRequest) normalize() {
	r.Username = strings.TrimSpace(r.Username)
	r.IMAPHost = strings.TrimSpace(r.IMAPHost)
}
