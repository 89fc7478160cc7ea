package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ArowuTest/pollstake-backend/api/routes"
	"github.com/ArowuTest/pollstake-backend/internal/bootstrap"
	"github.com/ArowuTest/pollstake-backend/internal/config"
	"github.com/ArowuTest/pollstake-backend/internal/handlers"
	"github.com/ArowuTest/pollstake-backend/internal/metrics"
	"github.com/ArowuTest/pollstake-backend/internal/models"
	"github.com/ArowuTest/pollstake-backend/internal/services"
	"github.com/ArowuTest/pollstake-backend/pkg/jwt"
	"github.com/ArowuTest/pollstake-backend/pkg/paystack"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := bootstrap.NewLogger(cfg.Log)
	slog.SetDefault(logger)
	gin.SetMode(cfg.Server.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := bootstrap.OpenStorage(ctx, cfg)
	if err != nil {
		slog.Error("Failed to open storage", "driver", cfg.Storage.Driver, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			slog.Error("Error disconnecting storage", "error", err)
		}
	}()

	notifier, err := bootstrap.NewNotifier(cfg.Kafka, logger)
	if err != nil {
		slog.Error("Failed to create notifier", "error", err)
		os.Exit(1)
	}
	defer notifier.Close()

	tokens, err := jwt.NewTokenService(cfg.JWT.Secret, time.Duration(cfg.JWT.ExpiresIn)*time.Second)
	if err != nil {
		slog.Error("Failed to create token service", "error", err)
		os.Exit(1)
	}
	if err := handlers.RegisterValidators(); err != nil {
		slog.Error("Failed to register validators", "error", err)
		os.Exit(1)
	}

	m := metrics.Default()
	gateway := paystack.NewClient(cfg.Paystack.BaseURL, cfg.Paystack.SecretKey, cfg.Paystack.CallbackURL, cfg.Paystack.MockAPI, cfg.Paystack.Timeout)
	if cfg.Paystack.MockAPI {
		slog.Warn("Paystack client running in mock mode")
	}

	// Initialize services
	settingsService := services.NewPlatformSettingsService(store.Settings, models.DefaultPlatformSettings(), cfg.Settings.RefreshInterval)
	walletService := services.NewWalletService(store.Transactor, store.Wallets, store.Txs, settingsService, gateway, notifier, m, services.ReconcileOptions{
		RatePerSecond: cfg.Reconcile.RatePerSecond,
		Burst:         cfg.Reconcile.Burst,
		StaleAfter:    cfg.Reconcile.StaleAfter,
		BatchSize:     cfg.Reconcile.BatchSize,
	})
	stakeService := services.NewStakeService(store.Transactor, store.Stakes, store.Polls, walletService, settingsService, notifier, m)
	lifecycleService := services.NewLifecycleService(store.Transactor, store.Polls, store.Stakes, walletService, settingsService, notifier, m)
	pollService := services.NewPollService(store.Polls)
	adminService := services.NewAdminService(lifecycleService, store.Polls, store.Txs, store.Wallets)

	if _, err := settingsService.Current(ctx); err != nil {
		slog.Error("Failed to load platform settings", "error", err)
		os.Exit(1)
	}
	go settingsService.Watch(ctx, cfg.Settings.RefreshInterval)
	go runExpirySweep(ctx, lifecycleService, cfg.Settings.ExpirySweepInterval)

	router := routes.SetupRouter(cfg, routes.HandlerDependencies{
		Tokens:          tokens,
		Metrics:         m,
		MetricsHandler:  promhttp.Handler(),
		PollHandler:     handlers.NewPollHandler(pollService, adminService),
		StakeHandler:    handlers.NewStakeHandler(stakeService),
		WalletHandler:   handlers.NewWalletHandler(walletService),
		AdminHandler:    handlers.NewAdminHandler(walletService, adminService),
		SettingsHandler: handlers.NewPlatformSettingsHandler(settingsService),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("Server starting", "port", cfg.Server.Port, "storage", cfg.Storage.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	slog.Info("Server exiting")
}

// runExpirySweep closes active polls whose end time has passed
func runExpirySweep(ctx context.Context, lifecycle services.LifecycleService, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := lifecycle.CloseExpired(ctx); err != nil {
				slog.Error("Expiry sweep failed", "error", err)
			}
		}
	}
}
