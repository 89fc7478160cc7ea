// Package bootstrap wires configuration into the logger, storage and notifier shared by the binaries.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ArowuTest/pollstake-backend/internal/config"
	"github.com/ArowuTest/pollstake-backend/internal/repositories"
	"github.com/ArowuTest/pollstake-backend/internal/repositories/memory"
	mongorepo "github.com/ArowuTest/pollstake-backend/internal/repositories/mongodb"
	"github.com/ArowuTest/pollstake-backend/pkg/mongodb"
	"github.com/ArowuTest/pollstake-backend/pkg/notify"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger builds the process logger. Output goes to a rotating file when one is configured.
func NewLogger(cfg config.LogConfig) *slog.Logger {
	var out io.Writer = os.Stdout
	if cfg.File != "" {
		out = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}
	}

	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(out, opts))
	}
	return slog.New(slog.NewJSONHandler(out, opts))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Storage bundles the repositories of one storage driver
type Storage struct {
	Transactor repositories.Transactor
	Polls      repositories.PollRepository
	Stakes     repositories.StakeRepository
	Wallets    repositories.WalletRepository
	Txs        repositories.TransactionRepository
	Settings   repositories.PlatformSettingsRepository

	closeFn func(ctx context.Context) error
}

// Close releases the underlying connection, if any
func (s *Storage) Close(ctx context.Context) error {
	if s.closeFn == nil {
		return nil
	}
	return s.closeFn(ctx)
}

// OpenStorage connects the configured storage driver
func OpenStorage(ctx context.Context, cfg *config.Config) (*Storage, error) {
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		slog.Warn("Using in-memory storage; data is lost on restart")
		store := memory.NewStore()
		return &Storage{
			Transactor: store,
			Polls:      memory.NewPollRepository(store),
			Stakes:     memory.NewStakeRepository(store),
			Wallets:    memory.NewWalletRepository(store),
			Txs:        memory.NewTransactionRepository(store),
			Settings:   memory.NewPlatformSettingsRepository(store),
		}, nil

	case config.DriverMongoDB:
		connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		client, err := mongodb.NewClient(connectCtx, cfg.MongoDB.URI)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
		}
		db := client.Database(cfg.MongoDB.Database)
		if err := mongorepo.EnsureIndexes(connectCtx, db); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, fmt.Errorf("failed to ensure indexes: %w", err)
		}
		slog.Info("Connected to MongoDB", "database", cfg.MongoDB.Database)
		return &Storage{
			Transactor: client,
			Polls:      mongorepo.NewPollRepository(db),
			Stakes:     mongorepo.NewStakeRepository(db),
			Wallets:    mongorepo.NewWalletRepository(db),
			Txs:        mongorepo.NewTransactionRepository(db),
			Settings:   mongorepo.NewPlatformSettingsRepository(db),
			closeFn:    client.Disconnect,
		}, nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// NewNotifier returns a Kafka publisher when enabled, otherwise a log-only notifier
func NewNotifier(cfg config.KafkaConfig, log *slog.Logger) (notify.Notifier, error) {
	if !cfg.Enabled {
		return notify.NewLogNotifier(log), nil
	}
	n, err := notify.NewKafkaNotifier(cfg.Brokers, cfg.Topic, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka notifier: %w", err)
	}
	return n, nil
}
