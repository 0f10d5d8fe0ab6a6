package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"procurement/db"
	"procurement/db/migrations"
	"procurement/internal/auth"
	"procurement/internal/config"
	"procurement/internal/handlers"
	"procurement/internal/metrics"
	"procurement/internal/notify"
	"procurement/internal/workflow"
)

func serveCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd, *envFile)
		},
	}
}

func connectDB(cfg *config.Config) (*sqlx.DB, error) {
	if err := cfg.RequireDatabase(); err != nil {
		return nil, err
	}
	conn, err := sqlx.Connect("postgres", cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to DB: %w", err)
	}
	conn.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	return conn, nil
}

func serve(cmd *cobra.Command, envFile string) error {
	cfg, log, err := bootstrap(envFile)
	if err != nil {
		return err
	}
	defer log.Sync()

	if err := cfg.RequireServer(); err != nil {
		return err
	}
	cfg.Log(log)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbConn, err := connectDB(cfg)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	if cfg.Database.AutoMigrate {
		if err := migrations.Run(dbConn.DB); err != nil {
			return err
		}
		log.Info("migrations applied")
	}

	m := metrics.New()
	notifiers := notify.Multi{notify.NewLog(log, m)}
	if cfg.NATS.URL != "" {
		nc, err := notify.Connect(cfg.NATS.URL, log)
		if err != nil {
			// события не критичны для процесса: работаем только с логом
			log.Warn("NATS unavailable, events will only be logged", zap.Error(err))
		} else {
			defer nc.Drain()
			notifiers = append(notifiers, notify.NewNATS(nc, log, m))
		}
	}

	store := db.NewStorage(dbConn)
	svc := workflow.NewService(store,
		workflow.WithNotifier(notifiers),
		workflow.WithRecorder(m),
		workflow.WithLogger(log),
	)
	gate := auth.NewGate(store, auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL))
	h := handlers.NewHandler(svc, gate, store, log)

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      handlers.NewRouter(h, gate.Middleware, m, m.Handler()),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("address", srv.Addr), zap.String("version", Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return <-errCh
}
