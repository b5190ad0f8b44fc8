package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/edoloughlin/nasc/internal/demo"
	"github.com/edoloughlin/nasc/pkg/metrics"
	"github.com/edoloughlin/nasc/pkg/processor"
	"github.com/edoloughlin/nasc/pkg/server"
	"github.com/edoloughlin/nasc/pkg/store"
)

func serveCmd() *cobra.Command {
	var (
		addr       string
		basePath   string
		storeKind  string
		badgerPath string
		redisAddr  string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the synchronization server",
		Long: `Start the server with the demo TodoList and User handlers.

Stores:
  memory   in-process map (default, state lost on restart)
  badger   embedded key-value store on disk
  redis    external Redis instance

Examples:
  nascd serve
  nascd serve --addr=:8080 --store=badger --badger-path=./data
  nascd serve --store=redis --redis-addr=localhost:6379`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(addr, basePath, storeKind, badgerPath, redisAddr, logLevel)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", ":3000", "Address to listen on")
	cmd.Flags().StringVar(&basePath, "base-path", "/nasc", "URL prefix for endpoints")
	cmd.Flags().StringVar(&storeKind, "store", "memory", "State store: memory, badger or redis")
	cmd.Flags().StringVar(&badgerPath, "badger-path", "./nasc-data", "Badger data directory")
	cmd.Flags().StringVar(&redisAddr, "redis-addr", "localhost:6379", "Redis address")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn or error")

	return cmd
}

func runServe(addr, basePath, storeKind, badgerPath, redisAddr, logLevel string) error {
	logger := newLogger(logLevel)
	slog.SetDefault(logger)

	st, cleanup, err := openStore(storeKind, badgerPath, redisAddr, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	m := metrics.New()
	schemas := demo.Schemas()

	proc := processor.New(demo.Registry(), st,
		processor.WithSchemas(schemas),
		processor.WithLogger(logger.With("component", "processor")),
		processor.WithMetrics(m),
	)

	srv := server.New(proc, &server.Config{
		BasePath: basePath,
		Schemas:  schemas,
		Metrics:  m,
		Logger:   logger.With("component", "server"),
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	srv.Mount(r)
	r.Handle("/metrics", promhttp.Handler())

	httpSrv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr, "base_path", basePath, "store", storeKind)
		errCh <- httpSrv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}
	return nil
}

func openStore(kind, badgerPath, redisAddr string, logger *slog.Logger) (processor.Store, func(), error) {
	switch kind {
	case "memory":
		return store.NewMemoryStore(), func() {}, nil
	case "badger":
		bs, err := store.OpenBadger(store.BadgerConfig{
			Path:   badgerPath,
			Logger: logger.With("component", "badger"),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open badger store: %w", err)
		}
		return bs, func() {
			if err := bs.Close(); err != nil {
				logger.Error("badger close failed", "error", err)
			}
		}, nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: redisAddr})
		return store.NewRedisStore(client), func() {
			if err := client.Close(); err != nil {
				logger.Error("redis close failed", "error", err)
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q (want memory, badger or redis)", kind)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
