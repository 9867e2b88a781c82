package cmd

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vibast-solutions/ms-go-mailtasks/app/queue"
)

var consumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Consume queued messages",
	Long:  "Consume queued messages from Redis streams.",
}

var promoteInterval time.Duration

// init registers consume subcommands.
func init() {
	consumeTasksCmd.Flags().DurationVar(&promoteInterval, "promote-interval", time.Second, "how often delayed retries are checked")
	consumeCmd.AddCommand(consumeTasksCmd)
	rootCmd.AddCommand(consumeCmd)
}

var consumeTasksCmd = &cobra.Command{
	Use:   "tasks [consumer_name]",
	Short: "Start the task worker pool",
	Long:  "Start WORKER_COUNT workers that read task invocations from the Redis stream, run them against the mailbox and re-schedule failures.",
	Args:  cobra.ExactArgs(1),
	Run:   runConsumeTasks,
}

// runConsumeTasks starts the worker pool and the delayed-retry promoter.
func runConsumeTasks(_ *cobra.Command, args []string) {
	consumerName := args[0]

	a, err := bootstrap()
	if err != nil {
		fatal(err)
	}
	defer a.Close()

	consumer := queue.NewTaskConsumer(a.rdb, a.tasks, consumerName, a.cfg.WorkerCount, a.logger)
	promoter := queue.NewPromoter(a.producer, promoteInterval, a.logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		a.logger.Info("received shutdown signal, stopping consumer")
		cancel()
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := promoter.Run(ctx); err != nil {
			a.logger.WithError(err).Error("promoter stopped")
		}
	}()

	if err := consumer.Run(ctx); err != nil {
		a.logger.WithError(err).Error("consumer error")
		cancel()
	}
	wg.Wait()

	a.logger.Info("consumer stopped")
}
