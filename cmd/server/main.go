package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"invertrack-go/internal/auth"
	"invertrack-go/internal/config"
	"invertrack-go/internal/database"
	"invertrack-go/internal/ledger"
	"invertrack-go/internal/logger"
	"invertrack-go/internal/market"
	"invertrack-go/internal/report"
	"invertrack-go/internal/server"
	"invertrack-go/internal/storage"
	"invertrack-go/internal/trading"

	"go.uber.org/zap"
)

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		panic(fmt.Sprintf("could not load config: %v", err))
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	// Initialize database
	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connection successful and schema migrated.")

	// Wire the domain services
	store := storage.NewStore(db, log)
	marketSvc := market.NewService(log, market.NewSeriesCache(), cfg.Market.Symbols, cfg.Market.HistoryYears)
	marketSvc.OverrideReferencePrices(cfg.Market.TodayPrices)
	emailSender := auth.NewEmailSender(cfg.Email, log)
	authSvc := auth.NewService(log, store, emailSender)
	executor := trading.NewExecutor(log, store, marketSvc)
	valuator := ledger.NewValuator(log, store)
	reports := report.NewGenerator(log, store, cfg.Reports.Dir)

	srv := server.New(log, &cfg, authSvc, marketSvc, store, executor, valuator, reports)

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Shutdown failed", zap.Error(err))
	}

	log.Info("Server has been shut down.")
}
