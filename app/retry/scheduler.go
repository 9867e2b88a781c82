package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/vibast-solutions/ms-go-mailtasks/app/entity"
	"github.com/vibast-solutions/ms-go-mailtasks/app/mailerr"
)

type Outcome int

const (
	Succeeded Outcome = iota
	RetryAfter
	Exhausted
)

func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "succeeded"
	case RetryAfter:
		return "retry_after"
	case Exhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Decision is the result of running one execution of an invocation.
type Decision struct {
	Outcome Outcome
	Delay   time.Duration
	Err     error
}

// Operation is one execution of a mailbox workflow.
type Operation func(ctx context.Context) error

type Policy struct {
	// MaxAttempts is the total number of executions allowed, including the first.
	MaxAttempts int
	Base        int
	Unit        time.Duration
	// NonRetryable kinds exhaust the invocation on first failure.
	NonRetryable map[mailerr.Kind]bool
}

// DefaultPolicy retries every error kind: four executions with delays of 1s, 2s and 4s.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 4, Base: 2, Unit: time.Second}
}

type Scheduler struct {
	policy Policy
}

// NewScheduler constructs a scheduler, clamping nonsensical policy values.
func NewScheduler(policy Policy) *Scheduler {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.Base < 1 {
		policy.Base = 2
	}
	if policy.Unit <= 0 {
		policy.Unit = time.Second
	}
	return &Scheduler{policy: policy}
}

// MaxAttempts returns the configured execution bound.
func (s *Scheduler) MaxAttempts() int {
	return s.policy.MaxAttempts
}

// MaxBackoff bounds a single retry delay.
const MaxBackoff = 24 * time.Hour

// Backoff returns Unit * Base^attemptIndex, capped at MaxBackoff.
func (s *Scheduler) Backoff(attemptIndex int) time.Duration {
	delay := s.policy.Unit
	if delay >= MaxBackoff {
		return MaxBackoff
	}
	base := time.Duration(s.policy.Base)
	for i := 0; i < attemptIndex; i++ {
		if delay > MaxBackoff/base {
			return MaxBackoff
		}
		delay *= base
	}
	return delay
}

// Retryable reports whether failures of kind may be retried under the policy.
func (s *Scheduler) Retryable(kind mailerr.Kind) bool {
	return !s.policy.NonRetryable[kind]
}

// Run executes op once for inv and decides what happens next. On failure inv.Attempt is
// incremented exactly once and inv.LastError recorded; the backoff uses the count before
// the increment. Run never panics, even when op does.
func (s *Scheduler) Run(ctx context.Context, op Operation, inv *entity.TaskInvocation) Decision {
	maxAttempts := inv.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = s.policy.MaxAttempts
		inv.MaxAttempts = maxAttempts
	}
	if inv.Attempt >= maxAttempts {
		return Decision{Outcome: Exhausted, Err: fmt.Errorf("invocation %s already used %d of %d attempts", inv.ID, inv.Attempt, maxAttempts)}
	}

	err := safeRun(ctx, op)
	if err == nil {
		return Decision{Outcome: Succeeded}
	}

	attemptIndex := inv.Attempt
	inv.Attempt++
	inv.LastError = err.Error()

	if !s.Retryable(mailerr.KindOf(err)) || inv.Attempt >= maxAttempts {
		return Decision{Outcome: Exhausted, Err: err}
	}
	return Decision{Outcome: RetryAfter, Delay: s.Backoff(attemptIndex), Err: err}
}

func safeRun(ctx context.Context, op Operation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("operation panicked: %v", r)
		}
	}()
	return op(ctx)
}
