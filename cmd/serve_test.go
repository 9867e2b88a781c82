package cmd

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	authclient "github.com/vibast-solutions/lib-go-auth/client"
	authmiddleware "github.com/vibast-solutions/lib-go-auth/middleware"
	authservice "github.com/vibast-solutions/lib-go-auth/service"

	"github.com/vibast-solutions/ms-go-mailtasks/app/controller"
	"github.com/vibast-solutions/ms-go-mailtasks/app/entity"
	"github.com/vibast-solutions/ms-go-mailtasks/app/logging"
	"github.com/vibast-solutions/ms-go-mailtasks/app/mailbox"
	"github.com/vibast-solutions/ms-go-mailtasks/app/service"
)

type mailtasksInternalAuthClientStub struct{}

func (mailtasksInternalAuthClientStub) ValidateInternalAccess(_ context.Context, req authclient.InternalAccessRequest) (authclient.InternalAccessResponse, error) {
	switch req.APIKey {
	case "valid-key":
		return authclient.InternalAccessResponse{
			ServiceName:   "caller-service",
			AllowedAccess: []string{"mailtasks-service"},
		}, nil
	case "no-access-key":
		return authclient.InternalAccessResponse{
			ServiceName:   "caller-service",
			AllowedAccess: []string{"notifications-service"},
		}, nil
	default:
		return authclient.InternalAccessResponse{}, &authclient.APIError{StatusCode: http.StatusUnauthorized}
	}
}

type taskServiceStub struct{}

func (taskServiceStub) Enqueue(context.Context, entity.OperationKind, any) (service.TaskHandle, error) {
	return service.TaskHandle{ID: "task-1"}, nil
}

func (taskServiceStub) Cancel(context.Context, string) error { return nil }

func (taskServiceStub) Status(_ context.Context, taskID string) (service.TaskStatus, error) {
	return service.TaskStatus{TaskID: taskID, Status: "new"}, nil
}

func newMailtasksTestServer() *http.Server {
	internalAuth := authservice.NewInternalAuthService(mailtasksInternalAuthClientStub{})
	internalAuthMW := authmiddleware.NewEchoInternalAuthMiddleware(internalAuth)
	defaults := mailbox.Credentials{Username: "ops@example.com", Secret: "server-secret", Host: "imap.example.com", Port: 993}
	taskController := controller.NewTaskController(taskServiceStub{}, defaults, logging.Discard())
	e := setupHTTPServer(taskController, internalAuthMW, "mailtasks-service")
	return &http.Server{Handler: e}
}

func serveTaskRequest(apiKey string) *httptest.ResponseRecorder {
	server := newMailtasksTestServer()

	req := httptest.NewRequest(http.MethodPost, "/tasks/read-and-reply", strings.NewReader(`{"folder":"INBOX"}`))
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	rec := httptest.NewRecorder()
	server.Handler.ServeHTTP(rec, req)
	return rec
}

func TestSetupHTTPServerTaskRouteUnauthorized(t *testing.T) {
	for _, key := range []string{"", "unknown-key"} {
		if rec := serveTaskRequest(key); rec.Code != http.StatusUnauthorized {
			t.Fatalf("key %q: expected status 401, got %d", key, rec.Code)
		}
	}
}

func TestSetupHTTPServerTaskRouteForbidden(t *testing.T) {
	if rec := serveTaskRequest("no-access-key"); rec.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rec.Code)
	}
}

func TestSetupHTTPServerTaskRouteAuthorized(t *testing.T) {
	rec := serveTaskRequest("valid-key")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"task_id":"task-1"`) {
		t.Fatalf("unexpected payload: %s", rec.Body.String())
	}
}

func TestSetupHTTPServerHealthRouteOpen(t *testing.T) {
	server := newMailtasksTestServer()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected health payload: %s", rec.Body.String())
	}
}
