package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/riandyrn/otelchi"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/neomorfeo/rehome/internal/adapter/authz"
	"github.com/neomorfeo/rehome/internal/adapter/fsm"
	handler "github.com/neomorfeo/rehome/internal/adapter/http"
	"github.com/neomorfeo/rehome/internal/adapter/memory"
	adapterotel "github.com/neomorfeo/rehome/internal/adapter/otel"
	redisadapter "github.com/neomorfeo/rehome/internal/adapter/redis"
	riveradapter "github.com/neomorfeo/rehome/internal/adapter/river"
	"github.com/neomorfeo/rehome/internal/adapter/sqlite"
	"github.com/neomorfeo/rehome/internal/app"
	"github.com/neomorfeo/rehome/internal/config"
	"github.com/neomorfeo/rehome/internal/domain"
)

const (
	serviceName    = "rehome"
	serviceVersion = "0.1.0"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flagSet := pflag.NewFlagSet(serviceName, pflag.ContinueOnError)
	envFile := flagSet.String("env-file", "", "load environment variables from this dotenv file first")
	port := flagSet.String("port", "", "HTTP listen port (overrides PORT)")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		return err
	}
	if *port != "" {
		cfg.Port = *port
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Observability ---
	otelCfg, err := adapterotel.ConfigFromEnv()
	if err != nil {
		return err
	}
	providers, err := adapterotel.Setup(ctx, otelCfg)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Error("otel shutdown", "error", err)
		}
	}()

	// --- Adapters (out) ---
	var (
		store domain.Store
		db    *sql.DB
	)
	switch cfg.Store {
	case "sqlite":
		db, err = adapterotel.OpenDB(cfg.DatabasePath)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()

		s, err := sqlite.NewFromDB(db)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		store = s
	case "memory":
		store = memory.New()
	}

	tracedStore, err := adapterotel.NewTracingStore(store)
	if err != nil {
		return err
	}

	publisher, riverClient, err := newPublisher(ctx, cfg, db, logger)
	if err != nil {
		return err
	}
	if closer, ok := publisher.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	// --- Application ---
	svc := app.NewService(tracedStore,
		adapterotel.NewTracingPublisher(publisher),
		fsm.New(),
		authz.NewPolicy(cfg.Moderators()),
		app.WithModerationPolicy(cfg.Policy()),
		app.WithRetryDelay(cfg.RetryDelay),
		app.WithLogger(logger),
	)

	// --- Adapters (in) ---
	router := chi.NewMux()
	router.Use(otelchi.Middleware(serviceName, otelchi.WithChiRoutes(router)))
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Get("/healthz", healthz(db))

	api := humachi.New(router, huma.DefaultConfig(serviceName, serviceVersion))
	handler.Register(api, svc)

	// --- Server ---
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if riverClient != nil {
		// River stops explicitly below, after in-flight notifications drain.
		if err := riverClient.Start(context.WithoutCancel(ctx)); err != nil {
			return fmt.Errorf("river start: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("rehome listening",
			"port", cfg.Port,
			"store", cfg.Store,
			"notifier", cfg.Notifier,
			"moderation_policy", cfg.ModerationPolicy,
		)
		logger.Info("API docs available", "url", "http://localhost:"+cfg.Port+"/docs")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
		svc.Wait()
		if riverClient != nil {
			if err := riverClient.Stop(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("river stop: %w", err))
			}
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("stopped")
	return nil
}

func newLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.Level()}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// newPublisher builds the notification sink named by cfg.Notifier. The River
// client is returned so the caller controls its lifetime.
func newPublisher(ctx context.Context, cfg config.Config, db *sql.DB, logger *slog.Logger) (domain.EventPublisher, *riveradapter.Client, error) {
	switch cfg.Notifier {
	case "river":
		client, err := riveradapter.Setup(ctx, db, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("river: %w", err)
		}
		return riveradapter.NewPublisher(client), client, nil
	case "redis":
		client, err := redisadapter.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, nil, err
		}
		return &closingPublisher{
			EventPublisher: redisadapter.NewPublisher(client, cfg.RedisChannel),
			close:          client.Close,
		}, nil, nil
	default:
		return &logPublisher{logger: logger}, nil, nil
	}
}

// closingPublisher ties a publisher to the connection it writes through.
type closingPublisher struct {
	domain.EventPublisher
	close func() error
}

func (p *closingPublisher) Close() error { return p.close() }

// logPublisher records notifications in the structured log when no
// delivery backend is configured.
type logPublisher struct {
	logger *slog.Logger
}

func (p *logPublisher) Publish(ctx context.Context, n domain.Notification) error {
	p.logger.InfoContext(ctx, "notification",
		"type", string(n.Type),
		"listing_id", n.ListingID,
		"application_id", n.ApplicationID,
		"actor_id", n.ActorID,
	)
	return nil
}

func healthz(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				http.Error(w, "database unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
