package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vibast-solutions/ms-go-mailtasks/app/entity"
	"github.com/vibast-solutions/ms-go-mailtasks/app/executor"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Enqueue one invocation of each operation",
	Long:  "Enqueue a read-and-reply pass over INBOX, a templated offer and a spam triage for \"Important\" using the configured mailbox.",
	Args:  cobra.NoArgs,
	RunE:  runDemo,
}

// init registers the demo command.
func init() {
	rootCmd.AddCommand(demoCmd)
}

func runDemo(cmd *cobra.Command, _ []string) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.cfg.ValidateMailbox(); err != nil {
		return err
	}
	creds := a.defaultCredentials()
	keyword := "Important"

	invocations := []struct {
		kind entity.OperationKind
		args any
	}{
		{
			kind: entity.OperationReadAndReply,
			args: executor.ReadAndReplyArgs{Credentials: creds, Folder: executor.DefaultFolder},
		},
		{
			kind: entity.OperationSendTemplated,
			args: executor.SendTemplatedArgs{
				Credentials:  creds,
				Recipients:   []string{"recipient@example.com"},
				Subject:      "Special Offer Just for You",
				TemplatePath: "templates/offer_template.txt",
				Context:      map[string]any{"name": "John Doe", "offer": "50% discount"},
			},
		},
		{
			kind: entity.OperationPullFromSpam,
			args: executor.PullFromSpamArgs{Credentials: creds, SubjectKeyword: &keyword},
		},
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	for _, inv := range invocations {
		handle, err := a.tasks.Enqueue(ctx, inv.kind, inv.args)
		if err != nil {
			return fmt.Errorf("enqueue %s: %w", inv.kind, err)
		}
		fmt.Printf("%s\t%s\n", inv.kind, handle.ID)
	}
	return nil
}
