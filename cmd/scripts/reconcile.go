// Command reconcile settles withdrawals and deposits left open by gateway outages.
//
//	go run ./cmd/scripts              reconcile every stale transaction
//	go run ./cmd/scripts -tx <id>     reconcile one transaction
//	go run ./cmd/scripts -list        list stale transactions without touching them
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ArowuTest/pollstake-backend/internal/bootstrap"
	"github.com/ArowuTest/pollstake-backend/internal/config"
	"github.com/ArowuTest/pollstake-backend/internal/metrics"
	"github.com/ArowuTest/pollstake-backend/internal/models"
	"github.com/ArowuTest/pollstake-backend/internal/services"
	"github.com/ArowuTest/pollstake-backend/pkg/paystack"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	txID := flag.String("tx", "", "reconcile a single transaction id")
	list := flag.Bool("list", false, "list stale transactions and exit")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	slog.SetDefault(bootstrap.NewLogger(config.LogConfig{Level: cfg.Log.Level, Format: "text"}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := bootstrap.OpenStorage(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer store.Close(context.Background())

	notifier, err := bootstrap.NewNotifier(cfg.Kafka, slog.Default())
	if err != nil {
		log.Fatalf("Failed to create notifier: %v", err)
	}
	defer notifier.Close()

	gateway := paystack.NewClient(cfg.Paystack.BaseURL, cfg.Paystack.SecretKey, cfg.Paystack.CallbackURL, cfg.Paystack.MockAPI, cfg.Paystack.Timeout)
	settings := services.NewPlatformSettingsService(store.Settings, models.DefaultPlatformSettings(), cfg.Settings.RefreshInterval)
	wallet := services.NewWalletService(store.Transactor, store.Wallets, store.Txs, settings, gateway, notifier,
		metrics.New(prometheus.NewRegistry()), services.ReconcileOptions{
			RatePerSecond: cfg.Reconcile.RatePerSecond,
			Burst:         cfg.Reconcile.Burst,
			StaleAfter:    cfg.Reconcile.StaleAfter,
			BatchSize:     cfg.Reconcile.BatchSize,
		})

	switch {
	case *list:
		err = listStale(ctx, wallet, cfg.Reconcile.StaleAfter)
	case *txID != "":
		err = reconcileOne(ctx, wallet, *txID)
	default:
		err = reconcileAll(ctx, wallet)
	}
	if err != nil {
		slog.Error("Reconciliation failed", "error", err)
		os.Exit(1)
	}
}

func reconcileOne(ctx context.Context, wallet services.WalletService, txID string) error {
	tx, err := wallet.Reconcile(ctx, models.SystemPrincipal, txID)
	if err != nil {
		return fmt.Errorf("reconcile %s: %w", txID, err)
	}
	fmt.Printf("%s\t%s\t%s\t%d\n", tx.ID.Hex(), tx.Type, tx.Status, tx.Amount)
	return nil
}

func reconcileAll(ctx context.Context, wallet services.WalletService) error {
	report, err := wallet.ReconcileAll(ctx, models.SystemPrincipal)
	if err != nil {
		return err
	}
	fmt.Printf("checked=%d completed=%d failed=%d unchanged=%d\n", report.Checked, report.Completed, report.Failed, report.Unchanged)
	for _, e := range report.Errors {
		fmt.Println("  error:", e)
	}
	return nil
}

func listStale(ctx context.Context, wallet services.WalletService, staleAfter time.Duration) error {
	cutoff := time.Now().Add(-staleAfter)
	filters := []models.TransactionFilter{
		{Type: models.TransactionTypeWithdrawal, Status: models.TransactionStatusProcessing, CreatedBefore: &cutoff},
		{Type: models.TransactionTypeDeposit, Status: models.TransactionStatusPending, CreatedBefore: &cutoff},
	}
	for _, f := range filters {
		for page := 1; ; page++ {
			res, err := wallet.ListAllTransactions(ctx, models.SystemPrincipal, f, models.PageQuery{Page: page, Limit: models.MaxPageLimit, SortOrder: "asc"})
			if err != nil {
				return err
			}
			for _, tx := range res.Docs {
				fmt.Printf("%s\t%s\t%s\t%s\t%d\t%s\n", tx.ID.Hex(), tx.Type, tx.Status, tx.Reference, tx.Amount, tx.CreatedAt.Format(time.RFC3339))
			}
			if !res.HasNextPage {
				break
			}
		}
	}
	return nil
}
