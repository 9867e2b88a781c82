package executor

import (
	"fmt"
	"strings"

	"github.com/vibast-solutions/ms-go-mailtasks/app/mailbox"
)

const (
	DefaultFolder       = "INBOX"
	DefaultNoSubject    = "(No Subject)"
	DefaultSpamFolder   = "[Gmail]/Spam"
	DefaultTargetFolder = "INBOX"
)

type ReadAndReplyArgs struct {
	Credentials mailbox.Credentials `json:"credentials"`
	Folder      string              `json:"folder"`
}

// Summary describes the arguments without the mailbox secret.
func (a ReadAndReplyArgs) Summary() string {
	return fmt.Sprintf("user=%s server=%s folder=%s", a.Credentials.Username, a.Credentials.Addr(), a.Folder)
}

type SendTemplatedArgs struct {
	Credentials  mailbox.Credentials `json:"credentials"`
	Recipients   []string            `json:"recipients"`
	Subject      string              `json:"subject"`
	TemplatePath string              `json:"template_path"`
	Context      map[string]any      `json:"context"`
}

// Summary describes the arguments without the mailbox secret or template context.
func (a SendTemplatedArgs) Summary() string {
	return fmt.Sprintf("user=%s recipients=%s subject=%q template=%s",
		a.Credentials.Username, strings.Join(a.Recipients, ","), a.Subject, a.TemplatePath)
}

type PullFromSpamArgs struct {
	Credentials    mailbox.Credentials `json:"credentials"`
	SubjectKeyword *string             `json:"subject_keyword,omitempty"`
	SpamFolder     string              `json:"spam_folder,omitempty"`
	TargetFolder   string              `json:"target_folder,omitempty"`
}

// Summary describes the arguments without the mailbox secret.
func (a PullFromSpamArgs) Summary() string {
	keyword := "<all>"
	if a.SubjectKeyword != nil {
		keyword = fmt.Sprintf("%q", *a.SubjectKeyword)
	}
	return fmt.Sprintf("user=%s server=%s spam_folder=%s keyword=%s",
		a.Credentials.Username, a.Credentials.Addr(), a.SpamFolder, keyword)
}
