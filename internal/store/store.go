// Package store is the durable document store: user profiles, chat session
// documents and their append-only message logs, kept in a SQL database
// through gorm.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	mysqldriver "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/skynetai/skynet/backend/internal/apperr"
	"github.com/skynetai/skynet/backend/internal/config"
)

// Store wraps the gorm handle.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// Open connects to the configured backend and migrates the schema.
func Open(ctx context.Context, cfg config.StoreConfig) (*Store, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case config.DriverSQLite:
		dialector = sqlite.Open(cfg.DSN)
	case config.DriverPostgres:
		dialector = postgres.New(postgres.Config{DriverName: "postgres", DSN: cfg.DSN})
	case config.DriverMySQL:
		dsn, err := mysqlDSN(cfg.DSN)
		if err != nil {
			return nil, err
		}
		dialector = mysql.New(mysql.Config{DSN: dsn})
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open %s store", cfg.Driver)
	}

	if cfg.Driver == config.DriverSQLite {
		// SQLite allows a single writer; funnel everything through one connection.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, errors.Wrap(err, "access sqlite pool")
		}
		sqlDB.SetMaxOpenConns(1)
	}

	s := New(db)
	if err := s.AutoMigrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// mysqlDSN normalizes a MySQL DSN. Timestamps are scanned into time.Time,
// and matched rows count as affected so a touch that writes an unchanged
// updated_at still proves the session exists.
func mysqlDSN(raw string) (string, error) {
	dsn, err := mysqldriver.ParseDSN(raw)
	if err != nil {
		return "", errors.Wrap(err, "parse mysql dsn")
	}
	dsn.ParseTime = true
	dsn.ClientFoundRows = true
	return dsn.FormatDSN(), nil
}

// New wraps an existing gorm handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// AutoMigrate creates or updates the tables.
func (s *Store) AutoMigrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&SessionDocument{}, &MessageDocument{}, &ProfileDocument{}); err != nil {
		return errors.Wrap(err, "migrate store schema")
	}
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return transient(err, "access store pool")
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return transient(err, "ping store")
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// transient classifies a driver failure as temporary infrastructure trouble.
func transient(err error, msg string) error {
	return apperr.Wrap(apperr.ErrTransient, errors.Wrap(err, msg), msg)
}
