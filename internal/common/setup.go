package common

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"invest-ledger-go/internal/api"
	"invest-ledger-go/internal/cache"
	"invest-ledger-go/internal/database"
	"invest-ledger-go/internal/distributor"
	"invest-ledger-go/internal/feed"
	"invest-ledger-go/internal/formance"
	"invest-ledger-go/internal/limiter"
	"invest-ledger-go/internal/models"
	"invest-ledger-go/internal/notify"
	"invest-ledger-go/internal/reconcile"
	"invest-ledger-go/internal/store"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// init loads environment variables from .env file if it exists
func init() {
	// Try to load .env file - if it doesn't exist, that's okay
	// Environment variables can be set via other means (shell export, docker, etc.)
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
		log.Println("Make sure to set environment variables via export or other means")
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

type Services struct {
	DbService  *database.Service
	Cache      *cache.Cache
	Limiter    *limiter.Limiter
	Accounts   *api.AccountService
	Reconciler *reconcile.Reconciler
	Mirror     *formance.Service
	Notifier   notify.Notifier
	Operations models.OperationsConfig
}

// InitializeLogger installs the global zap logger. When cfg.File is set the
// output is also written to a size-rotated JSON file.
func InitializeLogger(cfg models.LogConfig) (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	if cfg.File != "" {
		fileWriter := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		fileCore := zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(fileWriter),
			zap.InfoLevel,
		)
		logger = logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return zapcore.NewTee(core, fileCore)
		}))
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// InitializeServices opens the ledger and wires the account operations with
// the configured cooldown backend, mirror and notifier.
func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	operations, err := LoadOperationsConfig(cfg.OperationsFile)
	if err != nil {
		return nil, err
	}
	cfg.Operations = operations

	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	services := &Services{DbService: dbService, Operations: operations}

	var cooldowns store.CooldownStore = dbService
	switch cfg.Redis.CooldownBackend {
	case "", "sqlite":
	case "redis":
		retention := time.Duration(operations.CooldownDays+1) * 24 * time.Hour
		c, err := cache.NewCache(ctx, cfg.Redis, retention)
		if err != nil {
			services.Close()
			return nil, err
		}
		services.Cache = c
		cooldowns = c
	default:
		services.Close()
		return nil, fmt.Errorf("unknown cooldown backend %q", cfg.Redis.CooldownBackend)
	}

	services.Limiter = limiter.New(cooldowns, operations.CooldownDays, operations.MaxWithdrawalsPerPeriod)

	var opts []api.Option
	if cfg.Formance.StackURL != "" {
		mirror, err := formance.NewService(ctx, cfg.Formance)
		if err != nil {
			services.Close()
			return nil, err
		}
		services.Mirror = mirror
		opts = append(opts, api.WithMirror(mirror))
	}

	notifier, err := notify.New(cfg.Telegram)
	if err != nil {
		services.Close()
		return nil, err
	}
	services.Notifier = notifier

	services.Accounts = api.NewAccountService(dbService, dbService, services.Limiter, operations, opts...)
	services.Reconciler = reconcile.New(dbService, dbService)

	zap.L().Info("Services initialized",
		zap.String("database", cfg.Database.Path),
		zap.String("cooldown_backend", cfg.Redis.CooldownBackend),
		zap.Bool("mirror", services.Mirror != nil))

	return services, nil
}

// NewDistributor builds the profit distributor fed by the trading terminal.
func (cs *Services) NewDistributor(cfg *models.Config) (*distributor.Distributor, error) {
	terminal, err := feed.NewTerminalClient(cfg.Feed.Endpoint)
	if err != nil {
		return nil, err
	}

	dcfg := distributor.Config{
		MaterialityThreshold: cs.Operations.MaterialityThreshold,
		FeedTimeout:          cfg.Distributor.FeedTimeout,
	}
	if cs.Mirror != nil {
		dcfg.Mirror = cs.Mirror
	}

	return distributor.New(terminal, cs.DbService, cs.DbService, cs.DbService, cs.Notifier, dcfg), nil
}

func (cs *Services) Close() {
	if cs.Mirror != nil {
		cs.Mirror.Close()
	}
	if cs.Cache != nil {
		if err := cs.Cache.Close(); err != nil {
			zap.L().Warn("Failed to close redis client", zap.Error(err))
		}
	}
	if cs.DbService != nil {
		cs.DbService.Close()
	}
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
