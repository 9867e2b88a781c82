package cmd

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	authclient "github.com/vibast-solutions/lib-go-auth/client"
	authmiddleware "github.com/vibast-solutions/lib-go-auth/middleware"
	authservice "github.com/vibast-solutions/lib-go-auth/service"

	"github.com/vibast-solutions/ms-go-mailtasks/app/controller"
	"github.com/vibast-solutions/ms-go-mailtasks/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  "Start the HTTP (Echo) server that enqueues mailbox tasks and reports their status.",
	Run:   runServe,
}

// init registers the serve command.
func init() {
	rootCmd.AddCommand(serveCmd)
}

// runServe wires dependencies and starts the HTTP server.
func runServe(_ *cobra.Command, _ []string) {
	a, err := bootstrap()
	if err != nil {
		fatal(err)
	}
	defer a.Close()

	if err := a.cfg.ValidateAuth(); err != nil {
		fatal(err)
	}
	internalAuthMW, err := buildInternalAuthMiddleware(a.cfg)
	if err != nil {
		fatal(err)
	}

	taskController := controller.NewTaskController(a.tasks, a.defaultCredentials(), a.logger)
	e := setupHTTPServer(taskController, internalAuthMW, a.cfg.ServiceName)

	httpAddr := net.JoinHostPort(a.cfg.HTTPHost, a.cfg.HTTPPort)
	go func() {
		a.logger.WithField("addr", httpAddr).Info("starting HTTP server")
		if err := e.Start(httpAddr); err != nil && err != http.ErrServerClosed {
			a.logger.WithError(err).Fatal("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		a.logger.WithError(err).Warn("HTTP shutdown error")
	}

	a.logger.Info("server stopped")
}

// buildInternalAuthMiddleware validates caller API keys against the auth service.
func buildInternalAuthMiddleware(cfg *config.Config) (*authmiddleware.EchoInternalAuthMiddleware, error) {
	authClient, err := authclient.NewRESTClient(cfg.AuthServiceURL)
	if err != nil {
		return nil, fmt.Errorf("build auth client: %w", err)
	}
	internalAuth := authservice.NewInternalAuthService(authClient)
	return authmiddleware.NewEchoInternalAuthMiddleware(internalAuth), nil
}

// setupHTTPServer configures the Echo HTTP server and routes. Task routes require an
// internal API key granted access to serviceName.
func setupHTTPServer(taskController *controller.TaskController, internalAuthMW *authmiddleware.EchoInternalAuthMiddleware, serviceName string) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomiddleware.Logger())
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())

	tasks := e.Group("/tasks")
	internalAuthMW.ProtectAllWithAccess(tasks, serviceName)
	tasks.POST("/read-and-reply", taskController.ReadAndReply)
	tasks.POST("/send-templated", taskController.SendTemplated)
	tasks.POST("/pull-from-spam", taskController.PullFromSpam)
	tasks.GET("/:id", taskController.Status)
	tasks.DELETE("/:id", taskController.Cancel)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	return e
}
