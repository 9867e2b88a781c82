package controller

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-mailtasks/app/dto"
	"github.com/vibast-solutions/ms-go-mailtasks/app/entity"
	"github.com/vibast-solutions/ms-go-mailtasks/app/mailbox"
	"github.com/vibast-solutions/ms-go-mailtasks/app/service"
)

// TaskService is the part of service.TaskService the HTTP surface needs.
type TaskService interface {
	Enqueue(ctx context.Context, kind entity.OperationKind, args any) (service.TaskHandle, error)
	Cancel(ctx context.Context, taskID string) error
	Status(ctx context.Context, taskID string) (service.TaskStatus, error)
}

type TaskController struct {
	tasks    TaskService
	defaults mailbox.Credentials
	logger   logrus.FieldLogger
}

// NewTaskController constructs the HTTP task controller. defaults fill in mailbox login
// fields a request leaves empty.
func NewTaskController(tasks TaskService, defaults mailbox.Credentials, logger logrus.FieldLogger) *TaskController {
	return &TaskController{tasks: tasks, defaults: defaults, logger: logger}
}

// ReadAndReply enqueues an auto-reply pass over a folder.
func (c *TaskController) ReadAndReply(ctx echo.Context) error {
	req, err := dto.ReadAndReplyFromEcho(ctx)
	if err != nil {
		return invalidBody(ctx)
	}
	args, err := req.Args(c.defaults)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	return c.enqueue(ctx, entity.OperationReadAndReply, args)
}

// SendTemplated enqueues a templated campaign.
func (c *TaskController) SendTemplated(ctx echo.Context) error {
	req, err := dto.SendTemplatedFromEcho(ctx)
	if err != nil {
		return invalidBody(ctx)
	}
	args, err := req.Args(c.defaults)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	return c.enqueue(ctx, entity.OperationSendTemplated, args)
}

// PullFromSpam enqueues a spam triage pass.
func (c *TaskController) PullFromSpam(ctx echo.Context) error {
	req, err := dto.PullFromSpamFromEcho(ctx)
	if err != nil {
		return invalidBody(ctx)
	}
	args, err := req.Args(c.defaults)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	return c.enqueue(ctx, entity.OperationPullFromSpam, args)
}

// Cancel drops a pending invocation before its next execution.
func (c *TaskController) Cancel(ctx echo.Context) error {
	taskID := ctx.Param("id")
	if err := c.tasks.Cancel(ctx.Request().Context(), taskID); err != nil {
		if errors.Is(err, service.ErrTaskNotFound) {
			return ctx.JSON(http.StatusNotFound, map[string]string{"error": "task not found"})
		}
		c.logger.WithError(err).WithField("task_id", taskID).Error("cancel task failed")
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to cancel task"})
	}
	return ctx.JSON(http.StatusAccepted, map[string]string{"task_id": taskID, "message": "cancellation requested"})
}

// Status reports the recorded state of an invocation.
func (c *TaskController) Status(ctx echo.Context) error {
	taskID := ctx.Param("id")
	status, err := c.tasks.Status(ctx.Request().Context(), taskID)
	if err != nil {
		if errors.Is(err, service.ErrTaskNotFound) {
			return ctx.JSON(http.StatusNotFound, map[string]string{"error": "task not found"})
		}
		c.logger.WithError(err).WithField("task_id", taskID).Error("load task status failed")
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to load task"})
	}
	return ctx.JSON(http.StatusOK, status)
}

func (c *TaskController) enqueue(ctx echo.Context, kind entity.OperationKind, args any) error {
	handle, err := c.tasks.Enqueue(ctx.Request().Context(), kind, args)
	if err != nil {
		if errors.Is(err, service.ErrDuplicateTaskID) {
			return ctx.JSON(http.StatusConflict, map[string]string{"error": "duplicate task_id"})
		}
		c.logger.WithError(err).WithField("kind", kind).Error("enqueue task failed")
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to queue task"})
	}
	return ctx.JSON(http.StatusAccepted, handle)
}

func invalidBody(ctx echo.Context) error {
	return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
}
