package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"hotel-booking/internal/data/repository"
	"hotel-booking/internal/wire"
	"hotel-booking/internal/worker"
	"hotel-booking/pkg/cache"
	"hotel-booking/pkg/database"
	"hotel-booking/pkg/mq"
	"hotel-booking/pkg/payment"
	"hotel-booking/pkg/tracing"
	"hotel-booking/pkg/utils"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const consumerPrefetch = 8

func newServeCmd() *cobra.Command {
	var migrateUp bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := utils.LoadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.Validate(); err != nil {
				return err
			}

			logger := newLogger(config)
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, config, migrateUp, logger)
		},
	}

	cmd.Flags().BoolVar(&migrateUp, "migrate", false, "run database migrations on startup")
	return cmd
}

func serve(ctx context.Context, config *utils.Config, migrateUp bool, logger *zap.Logger) error {
	logger.Info("Starting application",
		zap.String("app", config.App.Name),
		zap.String("env", config.App.Env),
		zap.String("port", config.App.Port),
		zap.Bool("debug", config.App.Debug),
	)

	shutdownTracer, err := tracing.InitTracer(ctx, config.Tracing, config.App.Env)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(sctx); err != nil {
			logger.Warn("Tracer shutdown failed", zap.Error(err))
		}
	}()

	db, err := database.InitDB(config.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("Database connected successfully")

	if migrateUp {
		if err := database.Migrate(ctx, db); err != nil {
			return err
		}
		logger.Info("Schema migrated")
	}

	repos := repository.NewRepository(db, logger)
	gateway := payment.NewStripeGateway(config.Payment.StripeSecretKey, config.Payment.StripeWebhookSecret, logger)

	deps := wire.Deps{Repo: repos, Provider: gateway}

	if config.Redis.Addr != "" {
		rdb, err := cache.NewRedisClient(ctx, config.Redis)
		if err != nil {
			return err
		}
		defer rdb.Close()
		deps.Idempotency = cache.NewRedisIdempotencyStore(rdb)
		logger.Info("Idempotency keys enabled", zap.String("redis", config.Redis.Addr))
	} else {
		logger.Warn("REDIS_ADDR not set, Idempotency-Key headers are ignored")
	}

	var workers sync.WaitGroup
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	var consumer *mq.Consumer
	if config.RabbitMQ.URL != "" {
		publisher, err := mq.NewPublisher(config.RabbitMQ.URL, config.RabbitMQ.Exchange, logger)
		if err != nil {
			return err
		}
		defer publisher.Close()

		relay := worker.NewOutboxRelay(repos, publisher, config.Outbox, logger)
		deps.Notifier = relay

		workers.Add(1)
		go func() {
			defer workers.Done()
			relay.Run(workerCtx)
		}()

		consumer, err = mq.NewConsumer(config.RabbitMQ.URL, config.RabbitMQ.Exchange, config.RabbitMQ.InboundQueue, worker.CollaboratorKeys, consumerPrefetch, logger)
		if err != nil {
			return err
		}
		defer consumer.Close()
	} else {
		logger.Warn("RABBITMQ_URL not set, booking notifications stay in the outbox")
	}

	app := wire.Wiring(deps, config, logger)

	if consumer != nil {
		collaborators := worker.NewCollaboratorConsumer(consumer, app.Service.Booking, logger)
		workers.Add(1)
		go func() {
			defer workers.Done()
			collaborators.Run(workerCtx)
		}()
	}

	// Workers stop before the broker connections close.
	defer func() {
		cancelWorkers()
		workers.Wait()
	}()

	reaper, err := worker.NewReaper(workerCtx, config.Booking.ReaperSchedule, app.Service.Booking, logger)
	if err != nil {
		return err
	}
	reaper.Start()
	defer reaper.Stop()

	return APIServer(ctx, app.Router, config.App.Port, config.App.ShutdownTimeout, logger)
}

// APIServer serves until ctx is done, then drains in-flight requests.
func APIServer(ctx context.Context, handler http.Handler, port string, shutdownTimeout time.Duration, logger *zap.Logger) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          zap.NewStdLog(logger),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down HTTP server")
	if shutdownTimeout <= 0 {
		shutdownTimeout = 15 * time.Second
	}
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(sctx)
}

func newLogger(config *utils.Config) *zap.Logger {
	logger, err := utils.InitLogger(config.App.Name, config.App.LogPath, config.App.Debug)
	if err != nil {
		log.Printf("Failed to init logger: %v. Using standard log.", err)
		logger, _ = zap.NewProduction()
	}
	return logger
}
