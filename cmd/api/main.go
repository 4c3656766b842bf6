// Command api serves the queue over HTTP without running workers.
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

	if err := a.Serve(ctx, a.Config.Snapshot().ListenAddr, 0); err != nil {
		a.Log.WithError(err).Error("server exited")
		os.Exit(1)
	}
}
