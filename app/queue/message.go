package queue

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vibast-solutions/ms-go-mailtasks/app/entity"
)

const StreamName = "mailtasks:invocations"
const ConsumerGroup = "mailtask-workers"
const DelayedSetName = "mailtasks:delayed"
const DelayedPayloadsName = "mailtasks:delayed:payloads"
const CancelledSetName = "mailtasks:cancelled"

const (
	fieldTaskID  = "task_id"
	fieldPayload = "payload"
)

var ErrEmptyPayload = errors.New("message has no payload")

// encode serializes an invocation as the stream payload and delayed-set member.
func encode(inv *entity.TaskInvocation) (string, error) {
	data, err := json.Marshal(inv)
	if err != nil {
		return "", fmt.Errorf("encode invocation %s: %w", inv.ID, err)
	}
	return string(data), nil
}

// decode restores an invocation from a payload written by encode.
func decode(payload string) (*entity.TaskInvocation, error) {
	if payload == "" {
		return nil, ErrEmptyPayload
	}
	var inv entity.TaskInvocation
	if err := json.Unmarshal([]byte(payload), &inv); err != nil {
		return nil, fmt.Errorf("decode invocation: %w", err)
	}
	if inv.ID == "" {
		return nil, errors.New("decode invocation: missing id")
	}
	return &inv, nil
}
