package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/vibast-solutions/ms-go-mailtasks/app/entity"
)

var ErrTaskNotFound = errors.New("task not found")

type TaskHistoryRepository struct {
	db *sql.DB
}

// NewTaskHistoryRepository constructs a repository backed by MySQL.
func NewTaskHistoryRepository(db *sql.DB) *TaskHistoryRepository {
	return &TaskHistoryRepository{db: db}
}

// Create inserts a new task history record.
func (r *TaskHistoryRepository) Create(ctx context.Context, taskID string, kind entity.OperationKind, argsSummary string, status int16) error {
	const query = `
		INSERT INTO task_history (task_id, kind, args_summary, status, attempts)
		VALUES (?, ?, ?, ?, 0)
	`
	_, err := r.db.ExecContext(ctx, query, taskID, string(kind), argsSummary, status)
	return err
}

// DeleteByTaskID removes a history record by task ID.
func (r *TaskHistoryRepository) DeleteByTaskID(ctx context.Context, taskID string) error {
	const query = `
		DELETE FROM task_history
		WHERE task_id = ?
	`
	_, err := r.db.ExecContext(ctx, query, taskID)
	return err
}

// UpdateStatus updates the status for a task ID.
func (r *TaskHistoryRepository) UpdateStatus(ctx context.Context, taskID string, status int16) error {
	const query = `
		UPDATE task_history
		SET status = ?
		WHERE task_id = ?
	`
	_, err := r.db.ExecContext(ctx, query, status, taskID)
	return err
}

// RecordResult stores the status, attempt count and last error after an execution.
func (r *TaskHistoryRepository) RecordResult(ctx context.Context, taskID string, status int16, attempts int, lastError string) error {
	const query = `
		UPDATE task_history
		SET status = ?, attempts = ?, last_error = ?
		WHERE task_id = ?
	`
	_, err := r.db.ExecContext(ctx, query, status, attempts, lastError, taskID)
	return err
}

// Get loads a history record by task ID.
func (r *TaskHistoryRepository) Get(ctx context.Context, taskID string) (*entity.TaskHistory, error) {
	const query = `
		SELECT task_id, kind, args_summary, status, attempts, COALESCE(last_error, '')
		FROM task_history
		WHERE task_id = ?
	`
	var h entity.TaskHistory
	var kind string
	err := r.db.QueryRowContext(ctx, query, taskID).Scan(&h.TaskID, &kind, &h.ArgsSummary, &h.Status, &h.Attempts, &h.LastError)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	h.Kind = entity.OperationKind(kind)
	return &h, nil
}
