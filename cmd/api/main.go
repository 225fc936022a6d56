package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"time"

	"github.com/cradoe/lumenbank/internal/app"
	"github.com/cradoe/lumenbank/internal/version"
	"github.com/cradoe/lumenbank/internal/worker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	err := run(logger)
	if err != nil {
		trace := string(debug.Stack())
		logger.Error(err.Error(), "trace", trace)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	showVersion := flag.Bool("version", false, "display version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("version: %s\n", version.Get())
		return nil
	}

	application, err := app.NewApplication(logger)
	if err != nil {
		return err
	}
	defer application.DB.Close()
	defer application.Cache.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	workers := worker.New(&worker.Worker{
		KafkaStream: application.Kafka,
		DB:          application.DB,
		Poster:      application.Poster,
		Activator:   application.Activator,
		Mailer:      application.Mailer,
		Logger:      logger,
		Ctx:         ctx,
	})

	go workers.NotificationWorker()
	go workers.JointDepositWorker()
	go workers.SettlementSweep(time.Duration(application.Config.Settlement.SweepIntervalSeconds) * time.Second)

	return application.ServeHTTP()
}
