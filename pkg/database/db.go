package database

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// DB is the subset of *sqlx.DB the document backends use.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (Result, error)
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	PingContext(ctx context.Context) error
	Close() error
}

// Result mirrors sql.Result so callers do not need database/sql.
type Result interface {
	RowsAffected() (int64, error)
}

type Config struct {
	Driver          string
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN renders the lib/pq connection string for the config.
func (c Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

type DatabaseInstance struct {
	*sqlx.DB
	logger ectologger.Logger
}

func NewDatabaseInstance(db *sqlx.DB, logger ectologger.Logger) *DatabaseInstance {
	return &DatabaseInstance{
		DB:     db,
		logger: logger,
	}
}

// Open connects with sqlx and applies the pool settings.
func Open(ctx context.Context, cfg Config, logger ectologger.Logger) (*DatabaseInstance, error) {
	db, err := sqlx.ConnectContext(ctx, cfg.Driver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s at %s:%s: %w", cfg.Driver, cfg.Host, cfg.Port, err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	logger.WithFields(map[string]any{"host": cfg.Host, "database": cfg.Name}).Info("Connected to database")
	return NewDatabaseInstance(db, logger), nil
}

func (db *DatabaseInstance) ExecContext(ctx context.Context, query string, args ...any) (Result, error) {
	return db.DB.ExecContext(ctx, query, args...)
}
