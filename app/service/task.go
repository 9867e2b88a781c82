package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-mailtasks/app/entity"
	"github.com/vibast-solutions/ms-go-mailtasks/app/executor"
	"github.com/vibast-solutions/ms-go-mailtasks/app/lock"
	"github.com/vibast-solutions/ms-go-mailtasks/app/repository"
	"github.com/vibast-solutions/ms-go-mailtasks/app/retry"
)

// TaskQueue publishes invocations for immediate or delayed execution.
type TaskQueue interface {
	Publish(ctx context.Context, inv *entity.TaskInvocation) error
	Schedule(ctx context.Context, inv *entity.TaskInvocation, at time.Time) error
}

// CancelRegistry records cancelled invocations.
type CancelRegistry interface {
	Cancel(ctx context.Context, taskID string) error
	IsCancelled(ctx context.Context, taskID string) (bool, error)
}

// OperationResolver turns an invocation into a runnable operation.
type OperationResolver interface {
	Operation(inv *entity.TaskInvocation) (retry.Operation, error)
}

// TaskHandle identifies an enqueued invocation.
type TaskHandle struct {
	ID string `json:"task_id"`
}

// TaskStatus is the externally visible state of an invocation.
type TaskStatus struct {
	TaskID      string `json:"task_id"`
	Kind        string `json:"kind"`
	Status      string `json:"status"`
	Attempts    int    `json:"attempts"`
	ArgsSummary string `json:"args_summary"`
	LastError   string `json:"last_error,omitempty"`
}

// lockMargin covers the bookkeeping done around an execution while the lock is held.
const lockMargin = 30 * time.Second

type TaskService struct {
	queue     TaskQueue
	cancels   CancelRegistry
	operation OperationResolver
	scheduler *retry.Scheduler
	history   *repository.TaskHistoryRepository
	locker    lock.Locker
	timeout   time.Duration
	logger    logrus.FieldLogger
	now       func() time.Time
}

// NewTaskService builds the task service with dependencies. timeout bounds one execution
// and the invocation lock.
func NewTaskService(
	queue TaskQueue,
	cancels CancelRegistry,
	operation OperationResolver,
	scheduler *retry.Scheduler,
	history *repository.TaskHistoryRepository,
	locker lock.Locker,
	timeout time.Duration,
	logger logrus.FieldLogger,
) *TaskService {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &TaskService{
		queue:     queue,
		cancels:   cancels,
		operation: operation,
		scheduler: scheduler,
		history:   history,
		locker:    locker,
		timeout:   timeout,
		logger:    logger,
		now:       time.Now,
	}
}

// Enqueue records a new invocation of kind and publishes it. The history row is removed
// again when publishing fails.
func (s *TaskService) Enqueue(ctx context.Context, kind entity.OperationKind, args any) (TaskHandle, error) {
	if !kind.Valid() {
		return TaskHandle{}, fmt.Errorf("%w: %q", ErrUnknownOperation, kind)
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return TaskHandle{}, fmt.Errorf("marshal %s args: %w", kind, err)
	}

	now := s.now().UTC()
	inv := &entity.TaskInvocation{
		ID:             uuid.NewString(),
		Kind:           kind,
		Args:           raw,
		MaxAttempts:    s.scheduler.MaxAttempts(),
		NextEligibleAt: now,
		CreatedAt:      now,
	}

	if err := s.history.Create(ctx, inv.ID, kind, executor.Summary(kind, raw), entity.TaskStatusNew); err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return TaskHandle{}, ErrDuplicateTaskID
		}
		return TaskHandle{}, fmt.Errorf("create task history: %w", err)
	}

	if err := s.queue.Publish(ctx, inv); err != nil {
		if deleteErr := s.history.DeleteByTaskID(ctx, inv.ID); deleteErr != nil {
			s.logger.WithError(deleteErr).WithField("task_id", inv.ID).Warn("removing history of unpublished task failed")
		}
		return TaskHandle{}, fmt.Errorf("publish task: %w", err)
	}

	s.logger.WithFields(logrus.Fields{"task_id": inv.ID, "kind": kind}).Info("task enqueued")
	return TaskHandle{ID: inv.ID}, nil
}

// Process runs one delivery of an invocation. A nil return means the delivery is settled
// (succeeded, re-scheduled, exhausted, cancelled or already finished). An error means it
// could not be handled now and should be redelivered.
func (s *TaskService) Process(ctx context.Context, inv *entity.TaskInvocation) error {
	ctx = WithTaskID(ctx, inv.ID)
	logger := s.loggerFor(ctx).WithFields(logrus.Fields{"kind": inv.Kind, "attempt": inv.Attempt})

	key := lock.InvocationKey(inv.ID)
	if err := s.locker.Acquire(ctx, key, s.timeout+lockMargin); err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	defer func() {
		if err := s.locker.Release(context.Background(), key); err != nil {
			logger.WithError(err).Warn("releasing invocation lock failed")
		}
	}()

	history, err := s.loadHistory(ctx, inv.ID)
	if err != nil {
		return err
	}
	if history != nil && isTerminal(history.Status) {
		logger.Info("invocation already settled, skipping redelivery")
		return nil
	}

	cancelled, err := s.cancels.IsCancelled(ctx, inv.ID)
	if err != nil {
		return fmt.Errorf("check cancellation: %w", err)
	}
	if cancelled {
		if err := s.history.UpdateStatus(ctx, inv.ID, entity.TaskStatusCancelled); err != nil {
			return fmt.Errorf("update status to cancelled: %w", err)
		}
		logger.Info("invocation cancelled before execution")
		return nil
	}

	if history != nil && inv.Attempt < history.Attempts {
		return s.repark(ctx, logger, inv, history)
	}

	op, err := s.operation.Operation(inv)
	if err != nil {
		// Arguments that cannot be decoded never will be; fail the invocation for good.
		inv.LastError = err.Error()
		return s.exhaust(ctx, logger, inv)
	}

	if err := s.history.UpdateStatus(ctx, inv.ID, entity.TaskStatusProcessing); err != nil {
		return fmt.Errorf("update status to processing: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	decision := s.scheduler.Run(runCtx, op, inv)
	cancel()

	switch decision.Outcome {
	case retry.Succeeded:
		if err := s.history.RecordResult(ctx, inv.ID, entity.TaskStatusSuccess, inv.Attempt, inv.LastError); err != nil {
			return fmt.Errorf("update status to success: %w", err)
		}
		logger.Info("invocation succeeded")
		return nil
	case retry.RetryAfter:
		return s.reschedule(ctx, logger, inv, decision)
	default:
		return s.exhaust(ctx, logger, inv)
	}
}

// Cancel marks a pending invocation so it is dropped before execution. An invocation that
// is already running finishes its current execution.
func (s *TaskService) Cancel(ctx context.Context, taskID string) error {
	history, err := s.history.Get(ctx, taskID)
	if err != nil {
		if errors.Is(err, repository.ErrTaskNotFound) {
			return ErrTaskNotFound
		}
		return fmt.Errorf("load task: %w", err)
	}
	if isTerminal(history.Status) {
		return nil
	}
	if err := s.cancels.Cancel(ctx, taskID); err != nil {
		return err
	}
	s.logger.WithField("task_id", taskID).Info("task cancellation requested")
	return nil
}

// Status reports the recorded state of an invocation.
func (s *TaskService) Status(ctx context.Context, taskID string) (TaskStatus, error) {
	history, err := s.history.Get(ctx, taskID)
	if err != nil {
		if errors.Is(err, repository.ErrTaskNotFound) {
			return TaskStatus{}, ErrTaskNotFound
		}
		return TaskStatus{}, fmt.Errorf("load task: %w", err)
	}
	return TaskStatus{
		TaskID:      history.TaskID,
		Kind:        string(history.Kind),
		Status:      StatusName(history.Status),
		Attempts:    history.Attempts,
		ArgsSummary: history.ArgsSummary,
		LastError:   history.LastError,
	}, nil
}

func (s *TaskService) reschedule(ctx context.Context, logger logrus.FieldLogger, inv *entity.TaskInvocation, decision retry.Decision) error {
	at := s.now().Add(decision.Delay).UTC()
	inv.NextEligibleAt = at

	if err := s.history.RecordResult(ctx, inv.ID, entity.TaskStatusRetrying, inv.Attempt, inv.LastError); err != nil {
		return fmt.Errorf("record retry: %w", err)
	}
	if err := s.queue.Schedule(ctx, inv, at); err != nil {
		return fmt.Errorf("schedule retry: %w", err)
	}
	logger.WithError(decision.Err).WithFields(logrus.Fields{
		"delay":        decision.Delay.String(),
		"attempts":     inv.Attempt,
		"max_attempts": inv.MaxAttempts,
	}).Warn("invocation failed, retry scheduled")
	return nil
}

// exhaust records the terminal failure and writes the final failure report.
func (s *TaskService) exhaust(ctx context.Context, logger logrus.FieldLogger, inv *entity.TaskInvocation) error {
	if err := s.history.RecordResult(ctx, inv.ID, entity.TaskStatusExhausted, inv.Attempt, inv.LastError); err != nil {
		return fmt.Errorf("record exhaustion: %w", err)
	}
	logger.WithFields(logrus.Fields{
		"args":         executor.Summary(inv.Kind, inv.Args),
		"attempts":     inv.Attempt,
		"max_attempts": inv.MaxAttempts,
		"last_error":   inv.LastError,
		"created_at":   inv.CreatedAt.Format(time.RFC3339),
	}).Error("invocation failed permanently")
	return nil
}

// repark handles a delivery whose attempt count is behind the recorded one. A later copy
// of the invocation was already recorded, so this one is parked again with the recorded
// count instead of running early. Parking replaces any copy already waiting.
func (s *TaskService) repark(ctx context.Context, logger logrus.FieldLogger, inv *entity.TaskInvocation, history *entity.TaskHistory) error {
	logger = logger.WithField("recorded_attempts", history.Attempts)
	inv.Attempt = history.Attempts
	inv.LastError = history.LastError

	maxAttempts := inv.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = s.scheduler.MaxAttempts()
	}
	if inv.Attempt >= maxAttempts {
		return s.exhaust(ctx, logger, inv)
	}

	at := s.now().Add(s.scheduler.Backoff(inv.Attempt - 1)).UTC()
	inv.NextEligibleAt = at
	if err := s.queue.Schedule(ctx, inv, at); err != nil {
		return fmt.Errorf("re-park stale delivery: %w", err)
	}
	logger.Warn("stale delivery re-parked with the recorded attempt count")
	return nil
}

// loadHistory returns the recorded state of an invocation, or nil when none exists.
func (s *TaskService) loadHistory(ctx context.Context, taskID string) (*entity.TaskHistory, error) {
	history, err := s.history.Get(ctx, taskID)
	if errors.Is(err, repository.ErrTaskNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load task: %w", err)
	}
	return history, nil
}

func (s *TaskService) loggerFor(ctx context.Context) logrus.FieldLogger {
	if taskID, ok := TaskIDFromContext(ctx); ok {
		return s.logger.WithField("task_id", taskID)
	}
	return s.logger
}

func isTerminal(status int16) bool {
	switch status {
	case entity.TaskStatusSuccess, entity.TaskStatusCancelled, entity.TaskStatusExhausted:
		return true
	}
	return false
}

// StatusName maps a stored status code to its name.
func StatusName(status int16) string {
	switch status {
	case entity.TaskStatusNew:
		return "new"
	case entity.TaskStatusProcessing:
		return "processing"
	case entity.TaskStatusRetrying:
		return "retrying"
	case entity.TaskStatusSuccess:
		return "success"
	case entity.TaskStatusCancelled:
		return "cancelled"
	case entity.TaskStatusExhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("status(%d)", status)
	}
}
