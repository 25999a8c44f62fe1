package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"invest-ledger-go/internal/models"
	"invest-ledger-go/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Compile-time checks: *Service backs every store.
var (
	_ store.AccountStore    = (*Service)(nil)
	_ store.TransactionLog  = (*Service)(nil)
	_ store.TradeSet        = (*Service)(nil)
	_ store.CooldownStore   = (*Service)(nil)
	_ store.ReconcileSource = (*Service)(nil)
)

// Service is the SQLite backend. Each logical store has its own mutex, held
// for the whole read-modify-write of that store.
type Service struct {
	db *sql.DB

	accountsMu  sync.Mutex
	txLogMu     sync.Mutex
	tradesMu    sync.Mutex
	cooldownsMu sync.Mutex
}

func NewService(ctx context.Context, cfg models.DatabaseConfig) (*Service, error) {
	// Validate configuration
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if cfg.MaxOpenConns <= 0 {
		return nil, fmt.Errorf("max open connections must be positive, got %d", cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns < 0 {
		return nil, fmt.Errorf("max idle connections cannot be negative, got %d", cfg.MaxIdleConns)
	}
	if cfg.PingTimeout <= 0 {
		return nil, fmt.Errorf("ping timeout must be positive, got %v", cfg.PingTimeout)
	}

	zap.L().Info("Opening SQLite database", zap.String("file", cfg.Path))
	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=1000&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	// Set connection timeouts and limits
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// Test connection with timeout
	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			zap.L().Warn("Failed to close database after ping failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	service := &Service{db: db}
	if err := service.initSchema(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			zap.L().Warn("Failed to close database after schema failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}

	zap.L().Info("Database service initialized successfully")
	return service, nil
}

func (s *Service) Close() {
	if err := s.db.Close(); err != nil {
		zap.L().Warn("Failed to close database connection", zap.Error(err))
	}
}

// Ping is used by health checks.
func (s *Service) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// NewServiceFromDB wraps an already opened handle, creating the schema if
// needed. Callers own pool configuration.
func NewServiceFromDB(db *sql.DB) (*Service, error) {
	service := &Service{db: db}
	if err := service.initSchema(); err != nil {
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}
	return service, nil
}
