package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"saman/internal/amqp"
	"saman/internal/cli"
	"saman/internal/config"
	"saman/internal/export/sheets"
	"saman/internal/kv/sqlite"
	"saman/internal/log"
	"saman/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker)

	if err := run(logger); err != nil {
		logger.Error("Mirror worker stopped", log.FieldError, err)
		os.Exit(1)
	}
}

func run(logger *log.Logger) error {
	logger.Info("Starting saman-worker", log.FieldOperation, log.OpStartup)

	cfg, err := cli.LoadAndValidateConfig(logger, (*config.Config).ValidateWorker)
	if err != nil {
		return err
	}

	repo, err := sqlite.NewRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository",
			log.FieldError, err, log.FieldErrorType, log.ErrorTypeDatabase, "path", cfg.SQLiteDBPath)
		return err
	}
	defer repo.Close()

	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, nil)

	sheetsClient, err := sheets.New(ctx, sheets.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
	}, logger)
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
		return err
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client",
			log.FieldError, err, log.FieldErrorType, log.ErrorTypeNetwork)
		return err
	}
	defer client.Close()

	w := worker.NewMirrorWorker(repo, sheetsClient, cfg.MirrorDebounce, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return client.ConsumeChanges(gctx, w.HandleChange)
	})
	g.Go(func() error {
		return w.Run(gctx)
	})

	err = g.Wait()
	stats := w.Stats()
	logger.Info("Mirror worker finished",
		"received", stats.Received, "mirrored", stats.Mirrored,
		"skipped", stats.Skipped, "failed", stats.Failed)

	if ctx.Err() != nil {
		<-done
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
