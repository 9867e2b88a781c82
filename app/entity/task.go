package entity

import (
	"encoding/json"
	"time"
)

type OperationKind string

const (
	OperationReadAndReply  OperationKind = "read_and_reply"
	OperationSendTemplated OperationKind = "send_templated"
	OperationPullFromSpam  OperationKind = "pull_from_spam"
)

// Valid reports whether k names a known operation.
func (k OperationKind) Valid() bool {
	switch k {
	case OperationReadAndReply, OperationSendTemplated, OperationPullFromSpam:
		return true
	}
	return false
}

const (
	TaskStatusNew        int16 = 0
	TaskStatusProcessing int16 = 1
	TaskStatusRetrying   int16 = 2
	TaskStatusSuccess    int16 = 10
	TaskStatusCancelled  int16 = 30
	TaskStatusExhausted  int16 = 50
)

// TaskInvocation is one logical request to run an operation, tracked across retries.
// Attempt counts failed executions so far.
type TaskInvocation struct {
	ID             string          `json:"id"`
	Kind           OperationKind   `json:"kind"`
	Args           json.RawMessage `json:"args"`
	Attempt        int             `json:"attempt"`
	MaxAttempts    int             `json:"max_attempts"`
	NextEligibleAt time.Time       `json:"next_eligible_at"`
	CreatedAt      time.Time       `json:"created_at"`
	LastError      string          `json:"last_error,omitempty"`
}

type TaskHistory struct {
	TaskID      string
	Kind        OperationKind
	ArgsSummary string
	Status      int16
	Attempts    int
	LastError   string
}
