package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/radiusdt/partner-portal/internal/queue"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume report generation jobs from the message broker",
	RunE:  runWorker,
}

func runWorker(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if a.cfg.Queue.URL == "" {
		return errors.New("PORTAL_AMQP_URL is required for the worker")
	}
	if a.db == nil {
		return errors.New("the worker needs the shared database; set PORTAL_DB_ENABLED=true")
	}

	consumer, err := queue.NewConsumer(a.cfg.Queue.URL, a.cfg.Queue.Exchange, a.cfg.Queue.Queue, a.logger)
	if err != nil {
		return err
	}
	defer consumer.Close()

	reports := a.reportService(nil)

	a.logger.Info("report worker started", zap.String("queue", a.cfg.Queue.Queue))
	err = consumer.Run(ctx, func(ctx context.Context, job queue.ReportJob) error {
		return reports.Process(ctx, job.ReportID)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	a.logger.Info("report worker stopped")
	return nil
}
