package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"carebridge/internal/api"
	"carebridge/internal/availability"
	"carebridge/internal/booking"
	"carebridge/internal/cache"
	"carebridge/internal/config"
	"carebridge/internal/database"
	"carebridge/internal/events"
	"carebridge/internal/lifecycle"
	"carebridge/internal/metrics"
	"carebridge/internal/scheduler"
	"carebridge/internal/slots"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load(os.Getenv("CAREBRIDGE_CONFIG_PATH"))
	if err != nil {
		bootLogger := zerolog.New(os.Stderr).With().Timestamp().Logger()
		bootLogger.Fatal().Err(err).Msg("failed to load config")
	}
	logger := newLogger(cfg)

	db, err := database.NewDB(cfg.Database.Path, database.Options{
		BusyTimeout:  cfg.BusyTimeout(),
		MaxOpenConns: cfg.Database.MaxOpenConnections,
	}, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer db.Close()

	var (
		rdb       *redis.Client
		slotCache cache.SlotCache = cache.Noop{}
	)
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		slotCache = cache.NewRedisSlotCache(rdb)
	} else {
		logger.Warn().Msg("redis address not set, slot cache disabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loc := cfg.Location()
	gen := slots.NewGenerator(cfg.SlotDuration())
	window := availability.Window{Location: loc, MaxAdvanceDays: cfg.MaxAdvanceDays()}

	bus := events.NewBus()
	bus.SubscribeAll(events.LogNotifier(&logger))
	outbox := events.NewOutbox(db)

	slotSvc := availability.NewService(db, slotCache, gen, window, cfg.SlotCacheTTL(), &logger)
	bookingSvc := booking.NewService(db, slotSvc, outbox, gen, window, cfg.ReservationRetries(), &logger)
	lifecycleSvc := lifecycle.NewService(db, slotSvc, outbox, lifecycle.Policy{
		Location:           loc,
		CancellationCutoff: cfg.CancellationCutoff(),
		NoShowGrace:        cfg.NoShowGrace(),
	}, &logger)

	// Initial load + hot reload of providers configuration
	if err := config.WatchProviders(ctx, cfg.Providers.Path, cfg.ProvidersWatchInterval(),
		func(updated *config.ProvidersConfig) {
			if err := slotSvc.SyncFromConfig(ctx, updated); err != nil {
				logger.Error().Err(err).Msg("failed to apply providers config")
				return
			}
			logger.Info().Int("providers", len(updated.Providers)).Msg("providers config applied")
		},
		func(err error) {
			logger.Error().Err(err).Msg("providers config reload failed, keeping previous")
		},
	); err != nil {
		logger.Error().Err(err).Msg("providers watch failed")
	}

	dispatcher := events.NewDispatcher(db, bus, events.DispatcherConfig{
		Interval:      cfg.EventPollInterval(),
		BatchSize:     cfg.Events.BatchSize,
		MaxAttempts:   cfg.Events.MaxAttempts,
		RatePerSecond: cfg.Events.RatePerSecond,
		Burst:         cfg.Events.Burst,
	}, &logger)
	go dispatcher.Start(ctx)

	jobs := scheduler.New(scheduler.Config{
		CheckInterval: cfg.SchedulerInterval(),
		ReminderHour:  cfg.Scheduler.ReminderHour,
		NoShowGrace:   cfg.NoShowGrace(),
		Location:      loc,
	}, db, lifecycleSvc, outbox, &logger)
	go jobs.Start(ctx)

	go database.NewBackupService(db, cfg.Backup, &logger).Start(ctx)

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8090
	}
	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, db, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Address,
		Handler:           api.NewServer(slotSvc, bookingSvc, lifecycleSvc, &logger).Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go shutdownOnDone(ctx, srv, 10*time.Second)

	logger.Info().Str("address", cfg.HTTP.Address).Str("timezone", loc.String()).Msg("carebridge started")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("api server error")
	}
	logger.Info().Msg("carebridge stopped")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil || cfg.Logging.Level == "" {
		level = zerolog.InfoLevel
	}
	if cfg.Logging.Pretty {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		return zerolog.New(output).Level(level).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
}

func shutdownOnDone(ctx context.Context, srv *http.Server, grace time.Duration) {
	<-ctx.Done()
	ctxShutdown, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	_ = srv.Shutdown(ctxShutdown)
}

func startHealthServer(ctx context.Context, port int, db *database.DB, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := db.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		// Redis is optional: slot listings fall back to the store without it.
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go shutdownOnDone(ctx, srv, 3*time.Second)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go shutdownOnDone(ctx, srv, 3*time.Second)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
