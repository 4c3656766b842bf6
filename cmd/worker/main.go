// Command worker runs QUEUECTL_WORKERS queue workers until SIGINT or SIGTERM,
// then drains them for at most QUEUECTL_SHUTDOWN_TIMEOUT.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joshu-sajeev/queuectl/internal/app"
	"github.com/sirupsen/logrus"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Bootstrap(ctx)
	if err != nil {
		logrus.WithError(err).Fatal("startup failed")
	}
	defer a.Close()

	workers := a.Config.Snapshot().Workers
	a.Log.WithField("workers", workers).Info("worker pool active, press Ctrl+C to stop")

	if err := a.RunWorkers(ctx, workers); err != nil {
		a.Log.WithError(err).Error("shutdown failed")
		os.Exit(1)
	}
	a.Log.Info("shutdown complete")
}
