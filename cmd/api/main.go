package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/parth-sh/backend-api/internal/api"
	"github.com/parth-sh/backend-api/internal/auth"
	"github.com/parth-sh/backend-api/internal/config"
	"github.com/parth-sh/backend-api/internal/database"
	"github.com/parth-sh/backend-api/internal/notify"
	"github.com/parth-sh/backend-api/internal/session"
	"github.com/parth-sh/backend-api/internal/store"
)

const (
	version         = "0.1.0"
	shutdownTimeout = 15 * time.Second
)

var configInit = config.LoadConfig

type app struct {
	cfg        *config.Config
	api        *api.Api
	db         *database.DB
	dispatcher *notify.Dispatcher
	sqlStore   *session.SQLStore
	redis      *redis.Client
	logger     *slog.Logger
}

func initializeApp(ctx context.Context, configPath string, logger *slog.Logger) (*app, error) {
	cfg, err := configInit(configPath)
	if err != nil {
		return nil, err
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, db: db, logger: logger}

	sessions, err := a.newSessionStore(ctx)
	if err != nil {
		a.close()
		return nil, err
	}

	notifier, err := newNotifier(ctx, cfg, logger)
	if err != nil {
		a.close()
		return nil, err
	}
	a.dispatcher = notify.NewDispatcher(notifier, cfg.Notify.Timeout, logger)

	flows, err := auth.New(cfg, store.New(db), sessions, a.dispatcher, logger)
	if err != nil {
		a.close()
		return nil, err
	}

	a.api, err = api.NewApi(cfg, flows, logger)
	if err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) newSessionStore(ctx context.Context) (session.Store, error) {
	switch a.cfg.Session.Store {
	case "redis":
		a.redis = redis.NewClient(&redis.Options{
			Addr:     a.cfg.Session.Redis.Addr,
			Password: a.cfg.Session.Redis.Password,
			DB:       a.cfg.Session.Redis.DB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return nil, oops.Code("REDIS_UNAVAILABLE").With("addr", a.cfg.Session.Redis.Addr).Wrap(err)
		}
		return session.NewRedisStore(a.redis, a.cfg.Session.Redis.Prefix), nil
	case "sql", "":
		a.sqlStore = session.NewSQLStore(a.db, a.logger)
		return a.sqlStore, nil
	default:
		return nil, fmt.Errorf("unsupported session store: %q", a.cfg.Session.Store)
	}
}

func newNotifier(ctx context.Context, cfg *config.Config, logger *slog.Logger) (notify.Notifier, error) {
	switch cfg.Notify.Backend {
	case "s3":
		return notify.NewS3Outbox(ctx, cfg.Notify.S3)
	case "log", "":
		return notify.NewLogNotifier(logger), nil
	default:
		return nil, fmt.Errorf("unsupported notify backend: %q", cfg.Notify.Backend)
	}
}

// run serves HTTP on ln until ctx is cancelled, then drains in-flight
// requests and notifications.
func (a *app) run(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.api.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	cleanupCtx, stopCleanup := context.WithCancel(ctx)
	defer stopCleanup()
	if a.sqlStore != nil && a.cfg.Session.CleanupInterval > 0 {
		go a.sqlStore.RunCleanup(cleanupCtx, a.cfg.Session.CleanupInterval)
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("starting API server", "addr", ln.Addr().String(), "version", version)
		errCh <- srv.Serve(ln)
	}()

	var err error
	select {
	case err = <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		} else {
			a.logger.Error("API server stopped", "error", err)
		}
	case <-ctx.Done():
		a.logger.Info("shutting down API server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err == nil {
		err = srv.Shutdown(shutdownCtx)
	}
	if derr := a.dispatcher.Close(shutdownCtx); derr != nil {
		a.logger.Warn("notifications still in flight at shutdown", "error", derr)
	}
	return err
}

func (a *app) close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("error closing redis client", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("error closing database", "error", err)
		}
	}
}

func newLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if os.Getenv("BACKEND_DEBUG") != "" {
		opts.Level = slog.LevelDebug
	}
	if os.Getenv("BACKEND_ENV") == "prod" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func main() {
	configPath := flag.String("config", config.DefaultPath(), "Path to configuration file")
	flag.Parse()

	logger := newLogger()
	slog.SetDefault(logger)
	logger.Info("starting backend-api", "version", version, "config", *configPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := initializeApp(ctx, *configPath, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.close()

	ln, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", a.cfg.APIPort))
	if err != nil {
		logger.Error("failed to listen", "port", a.cfg.APIPort, "error", err)
		os.Exit(1)
	}

	if err := a.run(ctx, ln); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
