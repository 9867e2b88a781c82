package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vibast-solutions/ms-go-mailtasks/app/dto"
	"github.com/vibast-solutions/ms-go-mailtasks/app/entity"
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Enqueue a mailbox task",
	Long:  "Enqueue a single mailbox task invocation and print its task ID.",
}

var (
	mailboxFlags dto.MailboxRequest

	readReplyFolder string

	templatedTo       []string
	templatedSubject  string
	templatedTemplate string
	templatedVars     map[string]string

	spamKeyword string
	spamFolder  string
	spamTarget  string
)

// init registers enqueue subcommands and their flags.
func init() {
	enqueueCmd.PersistentFlags().StringVar(&mailboxFlags.Username, "username", "", "mailbox login (defaults to MAIL_USERNAME)")
	enqueueCmd.PersistentFlags().StringVar(&mailboxFlags.Password, "password", "", "mailbox password (defaults to MAIL_PASSWORD)")
	enqueueCmd.PersistentFlags().StringVar(&mailboxFlags.IMAPHost, "imap-host", "", "IMAP server (defaults to IMAP_HOST)")
	enqueueCmd.PersistentFlags().IntVar(&mailboxFlags.IMAPPort, "imap-port", 0, "IMAP port (defaults to IMAP_PORT)")

	enqueueReadReplyCmd.Flags().StringVar(&readReplyFolder, "folder", "INBOX", "folder to scan for unread mail")

	enqueueSendTemplatedCmd.Flags().StringSliceVar(&templatedTo, "to", nil, "recipient address (repeatable)")
	enqueueSendTemplatedCmd.Flags().StringVar(&templatedSubject, "subject", "", "message subject")
	enqueueSendTemplatedCmd.Flags().StringVar(&templatedTemplate, "template", "", "template path relative to TEMPLATE_DIR")
	enqueueSendTemplatedCmd.Flags().StringToStringVar(&templatedVars, "var", nil, "template variable as key=value (repeatable)")

	enqueuePullSpamCmd.Flags().StringVar(&spamKeyword, "keyword", "", "only move messages whose subject contains this text")
	enqueuePullSpamCmd.Flags().StringVar(&spamFolder, "spam-folder", "", "spam folder (defaults to SPAM_FOLDER)")
	enqueuePullSpamCmd.Flags().StringVar(&spamTarget, "target-folder", "", "destination folder (defaults to INBOX)")

	enqueueCmd.AddCommand(enqueueReadReplyCmd, enqueueSendTemplatedCmd, enqueuePullSpamCmd)
	rootCmd.AddCommand(enqueueCmd)
}

var enqueueReadReplyCmd = &cobra.Command{
	Use:   "read-reply",
	Short: "Auto-reply to unread mail in a folder",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		req := dto.ReadAndReplyRequest{MailboxRequest: mailboxFlags, Folder: readReplyFolder}
		return enqueueWith(cmd.Context(), func(a *app) (entity.OperationKind, any, error) {
			args, err := req.Args(a.defaultCredentials())
			return entity.OperationReadAndReply, args, err
		})
	},
}

var enqueueSendTemplatedCmd = &cobra.Command{
	Use:   "send-templated",
	Short: "Send a rendered template to recipients",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		vars := make(map[string]any, len(templatedVars))
		for k, v := range templatedVars {
			vars[k] = v
		}
		req := dto.SendTemplatedRequest{
			MailboxRequest: mailboxFlags,
			Recipients:     templatedTo,
			Subject:        templatedSubject,
			TemplatePath:   templatedTemplate,
			Context:        vars,
		}
		return enqueueWith(cmd.Context(), func(a *app) (entity.OperationKind, any, error) {
			args, err := req.Args(a.defaultCredentials())
			return entity.OperationSendTemplated, args, err
		})
	},
}

var enqueuePullSpamCmd = &cobra.Command{
	Use:   "pull-spam",
	Short: "Move matching unread spam back to the inbox",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		req := dto.PullFromSpamRequest{MailboxRequest: mailboxFlags, SpamFolder: spamFolder, TargetFolder: spamTarget}
		if cmd.Flags().Changed("keyword") {
			keyword := spamKeyword
			req.SubjectKeyword = &keyword
		}
		return enqueueWith(cmd.Context(), func(a *app) (entity.OperationKind, any, error) {
			args, err := req.Args(a.defaultCredentials())
			return entity.OperationPullFromSpam, args, err
		})
	},
}

// enqueueWith bootstraps the app, builds the arguments and prints the new task ID.
func enqueueWith(ctx context.Context, build func(a *app) (entity.OperationKind, any, error)) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.Close()

	kind, args, err := build(a)
	if err != nil {
		return err
	}
	handle, err := a.tasks.Enqueue(ctx, kind, args)
	if err != nil {
		return err
	}
	fmt.Println(handle.ID)
	return nil
}
