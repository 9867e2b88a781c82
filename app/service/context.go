package service

import "context"

type taskIDKey struct{}

// WithTaskID stores the task ID in the context.
func WithTaskID(ctx context.Context, taskID string) context.Context {
	return context.WithValue(ctx, taskIDKey{}, taskID)
}

// TaskIDFromContext extracts the task ID from the context.
func TaskIDFromContext(ctx context.Context) (string, bool) {
	value := ctx.Value(taskIDKey{})
	if value == nil {
		return "", false
	}
	taskID, ok := value.(string)
	return taskID, ok
}
