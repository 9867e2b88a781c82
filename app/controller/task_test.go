package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/vibast-solutions/ms-go-mailtasks/app/entity"
	"github.com/vibast-solutions/ms-go-mailtasks/app/executor"
	"github.com/vibast-solutions/ms-go-mailtasks/app/logging"
	"github.com/vibast-solutions/ms-go-mailtasks/app/mailbox"
	"github.com/vibast-solutions/ms-go-mailtasks/app/service"
)

type enqueued struct {
	kind entity.OperationKind
	args any
}

type mockTasks struct {
	enqueueErr error
	cancelErr  error
	status     service.TaskStatus
	statusErr  error
	enqueued   []enqueued
	cancelled  []string
}

func (m *mockTasks) Enqueue(_ context.Context, kind entity.OperationKind, args any) (service.TaskHandle, error) {
	if m.enqueueErr != nil {
		return service.TaskHandle{}, m.enqueueErr
	}
	m.enqueued = append(m.enqueued, enqueued{kind: kind, args: args})
	return service.TaskHandle{ID: "task-1"}, nil
}

func (m *mockTasks) Cancel(_ context.Context, taskID string) error {
	if m.cancelErr != nil {
		return m.cancelErr
	}
	m.cancelled = append(m.cancelled, taskID)
	return nil
}

func (m *mockTasks) Status(_ context.Context, _ string) (service.TaskStatus, error) {
	return m.status, m.statusErr
}

var defaults = mailbox.Credentials{Username: "ops@example.com", Secret: "app-password", Host: "imap.example.com", Port: 993}

func newContext(method string, path string, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestTaskControllerSendTemplatedAccepted(t *testing.T) {
	t.Parallel()

	tasks := &mockTasks{}
	ctrl := NewTaskController(tasks, defaults, logging.Discard())

	body := `{"recipients":["a@b.com","c@d.com"],"subject":"Monthly Newsletter","template_path":"newsletter.txt","context":{"name":"Subscriber"}}`
	ctx, rec := newContext(http.MethodPost, "/tasks/send-templated", body)
	if err := ctrl.SendTemplated(ctx); err != nil {
		t.Fatalf("SendTemplated: %v", err)
	}
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["task_id"] != "task-1" {
		t.Fatalf("expected task_id task-1, got %v", resp)
	}

	if len(tasks.enqueued) != 1 || tasks.enqueued[0].kind != entity.OperationSendTemplated {
		t.Fatalf("unexpected enqueued tasks %+v", tasks.enqueued)
	}
	args, ok := tasks.enqueued[0].args.(executor.SendTemplatedArgs)
	if !ok {
		t.Fatalf("unexpected args type %T", tasks.enqueued[0].args)
	}
	if args.Credentials != defaults || len(args.Recipients) != 2 || args.Context["name"] != "Subscriber" {
		t.Fatalf("unexpected args %+v", args)
	}
}

func TestTaskControllerValidationError(t *testing.T) {
	t.Parallel()

	tasks := &mockTasks{}
	ctrl := NewTaskController(tasks, defaults, logging.Discard())

	ctx, rec := newContext(http.MethodPost, "/tasks/send-templated", `{"recipients":["bad"],"subject":"s","template_path":"t.txt"}`)
	if err := ctrl.SendTemplated(ctx); err != nil {
		t.Fatalf("SendTemplated: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if len(tasks.enqueued) != 0 {
		t.Fatalf("expected nothing enqueued")
	}
}

func TestTaskControllerInvalidBody(t *testing.T) {
	t.Parallel()

	ctrl := NewTaskController(&mockTasks{}, defaults, logging.Discard())

	ctx, rec := newContext(http.MethodPost, "/tasks/read-and-reply", `{invalid`)
	if err := ctrl.ReadAndReply(ctx); err != nil {
		t.Fatalf("ReadAndReply: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestTaskControllerEnqueueFailure(t *testing.T) {
	t.Parallel()

	ctrl := NewTaskController(&mockTasks{enqueueErr: errors.New("redis down")}, defaults, logging.Discard())

	ctx, rec := newContext(http.MethodPost, "/tasks/pull-from-spam", `{"subject_keyword":"Important"}`)
	if err := ctrl.PullFromSpam(ctx); err != nil {
		t.Fatalf("PullFromSpam: %v", err)
	}
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestTaskControllerPullFromSpamKeyword(t *testing.T) {
	t.Parallel()

	tasks := &mockTasks{}
	ctrl := NewTaskController(tasks, defaults, logging.Discard())

	ctx, rec := newContext(http.MethodPost, "/tasks/pull-from-spam", `{"subject_keyword":"Important"}`)
	if err := ctrl.PullFromSpam(ctx); err != nil {
		t.Fatalf("PullFromSpam: %v", err)
	}
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	args := tasks.enqueued[0].args.(executor.PullFromSpamArgs)
	if args.SubjectKeyword == nil || *args.SubjectKeyword != "Important" {
		t.Fatalf("expected keyword Important, got %v", args.SubjectKeyword)
	}
}

func TestTaskControllerCancel(t *testing.T) {
	t.Parallel()

	tasks := &mockTasks{}
	ctrl := NewTaskController(tasks, defaults, logging.Discard())

	ctx, rec := newContext(http.MethodDelete, "/tasks/task-1", "")
	ctx.SetParamNames("id")
	ctx.SetParamValues("task-1")
	if err := ctrl.Cancel(ctx); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if len(tasks.cancelled) != 1 || tasks.cancelled[0] != "task-1" {
		t.Fatalf("unexpected cancellations %v", tasks.cancelled)
	}

	missing := NewTaskController(&mockTasks{cancelErr: service.ErrTaskNotFound}, defaults, logging.Discard())
	ctx, rec = newContext(http.MethodDelete, "/tasks/nope", "")
	ctx.SetParamNames("id")
	ctx.SetParamValues("nope")
	if err := missing.Cancel(ctx); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestTaskControllerStatus(t *testing.T) {
	t.Parallel()

	tasks := &mockTasks{status: service.TaskStatus{TaskID: "task-1", Kind: "read_and_reply", Status: "retrying", Attempts: 2}}
	ctrl := NewTaskController(tasks, defaults, logging.Discard())

	ctx, rec := newContext(http.MethodGet, "/tasks/task-1", "")
	ctx.SetParamNames("id")
	ctx.SetParamValues("task-1")
	if err := ctrl.Status(ctx); err != nil {
		t.Fatalf("Status: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got service.TaskStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Status != "retrying" || got.Attempts != 2 {
		t.Fatalf("unexpected status %+v", got)
	}
}
