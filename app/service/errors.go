package service

import "errors"

var (
	ErrUnknownOperation = errors.New("unknown operation kind")
	ErrDuplicateTaskID  = errors.New("duplicate task_id")
	ErrTaskNotFound     = errors.New("task not found")
)
