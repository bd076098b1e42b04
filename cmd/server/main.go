package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/sujalbistaa/stickyboard/internal/config"
	"github.com/sujalbistaa/stickyboard/internal/db"
	routes "github.com/sujalbistaa/stickyboard/internal/http"
	"github.com/sujalbistaa/stickyboard/internal/logger"
	"github.com/sujalbistaa/stickyboard/internal/metrics"
	"github.com/sujalbistaa/stickyboard/internal/moderation"
	"github.com/sujalbistaa/stickyboard/internal/store/memory"
	"github.com/sujalbistaa/stickyboard/internal/store/redisstore"
	"github.com/sujalbistaa/stickyboard/internal/ws"
)

const windowSweepInterval = time.Minute

func main() {
	// A missing .env is normal in production.
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "event", "config_invalid", "error", err.Error())
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)
	if envErr != nil {
		log.Info("no .env file found, reading from environment", "event", "dotenv_missing")
	}

	if err := run(cfg, log); err != nil {
		log.Error("server stopped with error", "event", "server_failed", "error", err.Error())
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(cfg.DatabaseURL, log)
	if err != nil {
		return err
	}
	defer db.Close(database)

	log.Info("running database migrations", "event", "db_migrate_started")
	if err := db.Migrate(database); err != nil {
		return err
	}

	clock := moderation.SystemClock{}
	windows, closeWindows, err := windowStore(ctx, cfg, clock, log)
	if err != nil {
		return err
	}
	defer closeWindows()

	hub := ws.NewHub(log)
	go hub.Run(ctx)
	recorder := metrics.New(hub.Connected)
	publisher := moderation.Publishers{hub, recorder}

	messages := db.NewMessages(database, log)
	comments := db.NewComments(database, log)
	reports := db.NewViolationReports(database, log)
	validator := moderation.Validator{BlockLinks: cfg.BlockLinks}

	engine := &moderation.Engine{
		Messages:  messages,
		Comments:  comments,
		Reports:   reports,
		Limiter:   moderation.NewRateLimiter(windows, clock, cfg.Policies, log),
		Validator: validator,
		Clock:     clock,
		Publisher: publisher,
		Logger:    log,
	}
	tracker := &moderation.Tracker{
		Comments:  comments,
		Clock:     clock,
		Threshold: cfg.AutoRejectThreshold,
		Validator: validator,
		Publisher: publisher,
		Logger:    log,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	routes.SetupRoutes(ctx, router, routes.Deps{
		Engine:  engine,
		Tracker: tracker,
		Stats:   moderation.Aggregator{Messages: messages, Comments: comments, Reports: reports},
		Clock:   clock,
		Hub:     hub,
		Metrics: recorder.Handler(),
		Logger:  log,
	}, routes.Options{
		AdminToken:       cfg.AdminToken,
		CORSOrigin:       cfg.CORSOrigin,
		InteractionRPS:   cfg.InteractionRPS,
		InteractionBurst: cfg.InteractionBurst,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "event", "server_listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}
	log.Info("shutting down server", "event", "server_shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info("server exited", "event", "server_exited")
	return nil
}

func windowStore(ctx context.Context, cfg config.Config, clock moderation.Clock, log *slog.Logger) (moderation.WindowStore, func(), error) {
	if cfg.RateLimitBackend != config.BackendRedis {
		store := memory.NewWindowStore()
		go store.RunJanitor(ctx, windowSweepInterval, clock, log)
		return store, func() {}, nil
	}

	opts, err := redisstore.Options(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	log.Info("redis rate limit store connected", "event", "redis_connected", "addr", opts.Addr)
	return redisstore.NewWindowStore(client, cfg.RedisPrefix), func() { _ = client.Close() }, nil
}
