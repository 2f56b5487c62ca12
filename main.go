package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"investment-backoffice/config"
	"investment-backoffice/internal/api"
	"investment-backoffice/internal/auth"
	"investment-backoffice/internal/cache"
	"investment-backoffice/internal/database"
	"investment-backoffice/internal/email"
	"investment-backoffice/internal/events"
	"investment-backoffice/internal/investment"
	"investment-backoffice/internal/ledger"
	"investment-backoffice/internal/logging"
	"investment-backoffice/internal/sweep"
	"investment-backoffice/internal/vault"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Default().Fatal("failed to load configuration", "error", err)
	}

	logger := logging.New(&logging.Config{
		Level:      cfg.LoggingConfig.Level,
		Output:     cfg.LoggingConfig.Output,
		JSONFormat: cfg.LoggingConfig.JSONFormat,
		Component:  "main",
	})
	logging.SetDefault(logger)
	logger.Info("structured logging initialized", "level", cfg.LoggingConfig.Level)

	db, err := database.NewDB(database.Config{
		Host:     cfg.DatabaseConfig.Host,
		Port:     cfg.DatabaseConfig.Port,
		User:     cfg.DatabaseConfig.User,
		Password: cfg.DatabaseConfig.Password,
		Database: cfg.DatabaseConfig.Database,
		SSLMode:  cfg.DatabaseConfig.SSLMode,
		MaxConns: cfg.DatabaseConfig.MaxConns,
		MinConns: cfg.DatabaseConfig.MinConns,
	})
	if err != nil {
		logger.Fatal("failed to connect to database", "error", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.RunMigrations(ctx); err != nil {
		logger.Fatal("failed to run migrations", "error", err)
	}

	repo := database.NewRepository(db)

	if err := auth.SeedAdminUser(ctx, repo, cfg.AuthConfig.AdminEmail, cfg.AuthConfig.AdminPassword); err != nil {
		logger.Fatal("failed to seed admin user", "error", err)
	}

	vaultClient, err := vault.NewClient(cfg.VaultConfig)
	if err != nil {
		logger.Fatal("failed to initialize vault client", "error", err)
	}
	if vaultClient.IsEnabled() {
		logger.Info("vault credential store enabled", "address", cfg.VaultConfig.Address)
	}

	var creds email.CredentialSource
	if vaultClient.IsEnabled() {
		creds = vaultClient
	}
	mailer := email.NewService(email.Config{
		Enabled:  cfg.SMTPConfig.Enabled,
		Host:     cfg.SMTPConfig.Host,
		Port:     cfg.SMTPConfig.Port,
		Username: cfg.SMTPConfig.Username,
		Password: cfg.SMTPConfig.Password,
		From:     cfg.SMTPConfig.From,
		FromName: cfg.SMTPConfig.FromName,
	}, creds)
	logger.Info("email service initialized", "configured", mailer.IsConfigured())

	var cacheSvc *cache.CacheService
	var planCache *cache.PlanCache
	if cfg.RedisConfig.Enabled {
		cacheSvc, err = cache.NewCacheService(cfg.RedisConfig)
		if err != nil {
			logger.Fatal("failed to initialize cache", "error", err)
		}
		planCache = cache.NewPlanCache(cacheSvc, cache.DefaultPlansTTL)
		logger.Info("redis cache enabled", "address", cfg.RedisConfig.Address)
	}

	eventBus := events.NewEventBus()

	jwtManager := auth.NewJWTManager(cfg.AuthConfig.JWTSecret,
		cfg.AuthConfig.AccessTokenDuration, cfg.AuthConfig.RefreshTokenDuration)
	authService := auth.NewService(repo, jwtManager, auth.Config{
		JWTSecret:            cfg.AuthConfig.JWTSecret,
		AccessTokenDuration:  cfg.AuthConfig.AccessTokenDuration,
		RefreshTokenDuration: cfg.AuthConfig.RefreshTokenDuration,
		MinPasswordLength:    cfg.AuthConfig.MinPasswordLength,
	})

	ledgerSvc := ledger.NewService(repo, mailer, eventBus)

	var investCache investment.PlanCache
	if planCache != nil {
		investCache = planCache
	}
	investSvc := investment.NewService(repo, mailer, investCache, eventBus)

	var sweeper *sweep.Scheduler
	if cfg.SweepConfig.Enabled {
		sweeper = sweep.NewScheduler(repo, mailer, eventBus, sweep.Config{
			Interval: cfg.SweepConfig.Interval,
		})
		if err := sweeper.Start(); err != nil {
			logger.Fatal("failed to start sweep scheduler", "error", err)
		}
		logger.Info("maturity sweep scheduler started", "interval", cfg.SweepConfig.Interval)
	}

	corsOrigin := ""
	if len(cfg.ServerConfig.AllowedOrigins) > 0 {
		corsOrigin = cfg.ServerConfig.AllowedOrigins[0]
	}

	server := api.NewServer(api.ServerConfig{
		Host:           cfg.ServerConfig.Host,
		Port:           cfg.ServerConfig.Port,
		ProductionMode: cfg.ServerConfig.ProductionMode,
		CORSOrigin:     corsOrigin,
	}, repo, eventBus, authService, jwtManager, ledgerSvc, investSvc, sweeper, cacheSvc, vaultClient)

	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal("web server failed", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("error shutting down web server", "error", err)
	}

	if sweeper != nil {
		if err := sweeper.Stop(); err != nil {
			logger.Error("error stopping sweep scheduler", "error", err)
		}
	}

	if cacheSvc != nil {
		if err := cacheSvc.Close(); err != nil {
			logger.Error("error closing cache", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
