package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"ledgerline/internal/infrastructure/postgres/listener"
	"ledgerline/internal/interfaces/scheduler"
	"ledgerline/internal/shared/config"
	"ledgerline/internal/shared/logger"
	"ledgerline/internal/shared/telemetry"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "application error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.New(logger.Options{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName:  cfg.Telemetry.ServiceName,
			Environment:  cfg.Telemetry.Environment,
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
			MetricsPort:  cfg.Telemetry.MetricsPort,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTelemetry(flushCtx); err != nil {
				log.Error().Err(err).Msg("failed to flush telemetry")
			}
		}()
	}

	deps, err := NewDependencies(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer deps.Close()

	pool := scheduler.NewWorkerPool(cfg.Scheduler.WorkerCount, cfg.Scheduler.JobDelay, cfg.Scheduler.QueueSize, log)
	pool.Start()
	bg := Background{Pool: pool}

	if cfg.Listener.Enabled {
		bg.Listener = listener.NewStatementListener(cfg.Database.ConnectionString(), cfg.Listener.Channel, fileJobHandler(deps, pool, cfg.Processor.CategorizeBatchSize, log), log)
		bg.Listener.Start(ctx)
	} else {
		log.Info().Msg("statement listener is disabled")
	}

	if cfg.Scheduler.Enabled {
		sched, err := scheduler.NewScheduler(scheduler.Config{
			ScheduleTimes: cfg.Scheduler.ScheduleTimes,
			RunOnStartup:  cfg.Scheduler.RunOnStartup,
			JobProvider:   scheduler.NewMaintenanceProvider(deps.TransactionRepo, deps.Processor, deps.Categorizer, cfg.Processor.CategorizeBatchSize),
		}, pool, log)
		if err != nil {
			GracefulShutdown(nil, bg, shutdownTimeout, log)
			return err
		}
		sched.Start()
		bg.Scheduler = sched
		log.Info().Time("next_run", sched.NextRun(time.Now())).Msg("scheduler started")
	} else {
		log.Info().Msg("scheduler is disabled")
	}

	handler := SetupRoutes(deps, cfg, log)
	srv, serverErr := StartServer(NewServerConfigFromConfig(handler, cfg), log)

	select {
	case <-ctx.Done():
	case err = <-serverErr:
		if err != nil {
			log.Error().Err(err).Msg("server failed")
		}
	}

	GracefulShutdown(srv, bg, shutdownTimeout, log)
	return err
}

// fileJobHandler queues a ProcessFileJob for every parsed statement announced
// on the notification channel.
func fileJobHandler(deps *Dependencies, pool *scheduler.WorkerPool, batchSize int, log zerolog.Logger) listener.Handler {
	return func(ctx context.Context, ev listener.StatementParsed) {
		job := scheduler.NewProcessFileJob(ev.FileID, ev.UserID, deps.Processor, deps.Categorizer, deps.NotificationService, batchSize)
		if err := pool.Submit(job); err != nil {
			log.Error().Err(err).Str("file_id", ev.FileID).Int64("user_id", ev.UserID).Msg("failed to queue file processing")
		}
	}
}
