package main

import (
	"context"
	"os"
	"time"

	"recur/internal/amqp"
	"recur/internal/cli"
	"recur/internal/log"
	"recur/internal/recurring"
	"recur/internal/services"
	"recur/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(logger)

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the detection worker",
			log.FieldErrorType, log.ErrorTypeConfiguration)
		os.Exit(1)
	}

	// The worker consumes requests itself, so the backend must not open a
	// publisher connection.
	amqpURL := cfg.AMQPURL
	cfg.AMQPURL = ""
	be := cli.InitBackend(context.Background(), logger, cfg)

	amqpClient, err := amqp.NewClient(context.Background(), amqpURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		_ = be.Cleanup()
		os.Exit(1)
	}

	detection := services.NewDetectionService(be.Store, recurring.NewEngine(cfg.Detection()),
		services.WithUpdateConcurrency(cfg.UpdateConcurrency),
		services.WithDetectionLogger(logger))
	w := worker.NewDetectionWorker(detection, logger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		if err := amqpClient.Close(); err != nil {
			logger.Error("AMQP close error", log.FieldError, err)
		}
		if err := be.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err)
		}
	})

	logger.Info("Starting recur-worker", "queue", cfg.AMQPQueue, log.FieldBackend, cfg.DataBackend)
	if err := w.Run(ctx, amqpClient); err != nil {
		logger.Error("Message consumption failed", log.FieldError, err)
	}

	cli.WaitForShutdown(ctx, done)
}
