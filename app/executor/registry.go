package executor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vibast-solutions/ms-go-mailtasks/app/entity"
	"github.com/vibast-solutions/ms-go-mailtasks/app/retry"
)

// Registry resolves a queued invocation into a runnable operation.
type Registry struct {
	readAndReply  *ReadAndReply
	sendTemplated *SendTemplated
	pullFromSpam  *PullFromSpam
}

// NewRegistry wires the three executors.
func NewRegistry(readAndReply *ReadAndReply, sendTemplated *SendTemplated, pullFromSpam *PullFromSpam) *Registry {
	return &Registry{readAndReply: readAndReply, sendTemplated: sendTemplated, pullFromSpam: pullFromSpam}
}

// Operation decodes the invocation arguments and returns a closure running the matching executor.
func (r *Registry) Operation(inv *entity.TaskInvocation) (retry.Operation, error) {
	switch inv.Kind {
	case entity.OperationReadAndReply:
		var args ReadAndReplyArgs
		if err := json.Unmarshal(inv.Args, &args); err != nil {
			return nil, fmt.Errorf("decode %s args: %w", inv.Kind, err)
		}
		return func(ctx context.Context) error {
			_, err := r.readAndReply.Execute(ctx, args)
			return err
		}, nil
	case entity.OperationSendTemplated:
		var args SendTemplatedArgs
		if err := json.Unmarshal(inv.Args, &args); err != nil {
			return nil, fmt.Errorf("decode %s args: %w", inv.Kind, err)
		}
		return func(ctx context.Context) error {
			return r.sendTemplated.Execute(ctx, args)
		}, nil
	case entity.OperationPullFromSpam:
		var args PullFromSpamArgs
		if err := json.Unmarshal(inv.Args, &args); err != nil {
			return nil, fmt.Errorf("decode %s args: %w", inv.Kind, err)
		}
		return func(ctx context.Context) error {
			_, err := r.pullFromSpam.Execute(ctx, args)
			return err
		}, nil
	default:
		return nil, fmt.Errorf("unknown operation kind %q", inv.Kind)
	}
}

// Summary describes raw arguments of kind with credentials redacted.
func Summary(kind entity.OperationKind, raw json.RawMessage) string {
	var summarizer interface{ Summary() string }
	switch kind {
	case entity.OperationReadAndReply:
		summarizer = &ReadAndReplyArgs{}
	case entity.OperationSendTemplated:
		summarizer = &SendTemplatedArgs{}
	case entity.OperationPullFromSpam:
		summarizer = &PullFromSpamArgs{}
	default:
		return fmt.Sprintf("kind=%s", kind)
	}
	if err := json.Unmarshal(raw, summarizer); err != nil {
		return fmt.Sprintf("kind=%s <undecodable args>", kind)
	}
	return summarizer.Summary()
}
