// Package main runs the business intelligence back office server.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	app "github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/httpapi"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/storage/postgres"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/config"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/platform/database"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/pkg/logger"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "", "Path to config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.NewDefault("main").WithError(err).Error("load configuration")
		os.Exit(1)
	}

	log := logger.New(logger.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}).WithField("component", "main")

	stores := app.Stores{}
	opts := app.Options{
		Version:          version,
		AuthSecret:       cfg.Auth.Secret,
		TokenTTL:         cfg.TokenTTL(),
		RedisAddr:        cfg.Alerting.RedisAddr,
		WebhookURL:       cfg.Alerting.WebhookURL,
		DedupWindow:      cfg.DedupWindow(),
		RuleInterval:     cfg.RuleInterval(),
		PipelineInterval: cfg.PipelineInterval(),
	}

	if cfg.Database.DSN != "" {
		db, err := database.Open(cfg.Database)
		if err != nil {
			log.WithError(err).Error("open database")
			os.Exit(1)
		}
		defer db.Close()
		if err := database.Migrate(db); err != nil {
			log.WithError(err).Error("apply migrations")
			os.Exit(1)
		}
		store := postgres.New(db)
		stores = app.Stores{
			Users:     store,
			Sessions:  store,
			Targets:   store,
			Rules:     store,
			Runs:      store,
			Alerts:    store,
			Pipelines: store,
			PII:       store,
			Audit:     store,
		}
		opts.HealthPinger = db
		log.Info("using postgres storage")
	} else {
		log.Warn("no database configured; using in-memory storage")
	}

	application, err := app.New(stores, opts, log)
	if err != nil {
		log.WithError(err).Error("build application")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := application.Start(ctx); err != nil {
		log.WithError(err).Error("start application")
		os.Exit(1)
	}

	if cfg.Auth.BootstrapUser != "" && cfg.Auth.BootstrapPassword != "" {
		if err := application.Bootstrap(ctx, cfg.Auth.BootstrapUser, cfg.Auth.BootstrapPassword); err != nil {
			log.WithError(err).Warn("bootstrap admin account")
		}
	}

	handler := httpapi.NewHandler(application, httpapi.RouterConfig{
		AllowedOrigins:    cfg.Server.AllowedOrigins,
		RequestsPerSecond: cfg.Server.RequestsPerSecond,
		Burst:             cfg.Server.Burst,
	}, log)

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.Server.Addr).Info("server listening")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.WithError(err).Error("server error")
			cancel()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("server shutdown")
	}
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("application stop")
	}
	log.Info("stopped")
}
