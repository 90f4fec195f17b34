// Package database provides the Postgres connection pool and migration runner.
package database

import (
	"context"
	"database/sql"
	"embed"
	"net/url"
	"strings"
	"sync"

	"exercisesapp/internal/config"
	"exercisesapp/internal/observability"
	contextutils "exercisesapp/internal/utils"

	// Import PostgreSQL driver for database/sql
	_ "github.com/lib/pq"

	"github.com/golang-migrate/migrate/v4"
	postgresmigrate "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"go.nhat.io/otelsql"

	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Manager handles database connections and migrations with proper logging
type Manager struct {
	logger *observability.Logger
}

var (
	otelDriverNameCache string
	otelDriverOnce      sync.Once
	otelDriverErr       error
)

// NewManager creates a new database manager with the provided logger
func NewManager(logger *observability.Logger) *Manager {
	return &Manager{logger: logger}
}

// DefaultDatabaseConfig returns the default connection pool settings
func DefaultDatabaseConfig() config.DatabaseConfig {
	return config.DatabaseConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: config.DatabaseConnMaxLifetime,
	}
}

// InitDB opens a connection pool and applies pending migrations
func (dm *Manager) InitDB(databaseURL string) (result0 *sql.DB, err error) {
	cfg := DefaultDatabaseConfig()
	cfg.URL = databaseURL
	return dm.InitDBWithConfig(cfg)
}

// InitDBWithConfig opens a connection pool with custom settings and applies
// pending migrations
func (dm *Manager) InitDBWithConfig(cfg config.DatabaseConfig) (result0 *sql.DB, err error) {
	_, span := observability.TraceDatabaseFunction(context.Background(), "InitDBWithConfig",
		attribute.String("db.name", extractDatabaseName(cfg.URL)),
		attribute.String("db.system", "postgresql"),
		attribute.Int("db.max_open_conns", cfg.MaxOpenConns),
		attribute.Int("db.max_idle_conns", cfg.MaxIdleConns),
	)
	defer observability.FinishSpan(span, &err)

	db, err := dm.InitDBWithoutMigrations(cfg)
	if err != nil {
		return nil, err
	}

	if err := dm.RunMigrations(db); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			dm.logger.Error(context.Background(), "Failed to close database after migration failure", closeErr)
		}
		return nil, err
	}

	return db, nil
}

// InitDBWithoutMigrations opens a connection pool without running migrations
func (dm *Manager) InitDBWithoutMigrations(cfg config.DatabaseConfig) (result0 *sql.DB, err error) {
	ctx, span := observability.TraceDatabaseFunction(context.Background(), "InitDBWithoutMigrations",
		attribute.String("db.name", extractDatabaseName(cfg.URL)),
	)
	defer observability.FinishSpan(span, &err)

	// Register the OpenTelemetry SQL driver once per process and reuse the name
	otelDriverOnce.Do(func() {
		otelDriverNameCache, otelDriverErr = otelsql.Register("postgres",
			otelsql.WithDatabaseName(extractDatabaseName(cfg.URL)),
			otelsql.TraceQueryWithArgs(),
			otelsql.WithSystem(semconv.DBSystemPostgreSQL),
			otelsql.TraceRowsAffected(),
		)
	})
	if otelDriverErr != nil {
		return nil, contextutils.WrapError(otelDriverErr, "failed to register otelsql driver")
	}

	db, err := sql.Open(otelDriverNameCache, cfg.URL)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to open database connection")
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			dm.logger.Error(ctx, "Failed to close database connection after ping failure", closeErr)
		}
		return nil, contextutils.WrapError(err, "failed to ping database")
	}

	dm.logger.Info(ctx, "Database connection established", map[string]interface{}{
		"max_open_conns":    cfg.MaxOpenConns,
		"max_idle_conns":    cfg.MaxIdleConns,
		"conn_max_lifetime": cfg.ConnMaxLifetime.String(),
	})

	return db, nil
}

// RunMigrations applies pending embedded migrations against the given pool
func (dm *Manager) RunMigrations(db *sql.DB) (err error) {
	_, span := observability.TraceDatabaseFunction(context.Background(), "RunMigrations",
		attribute.String("db.system", "postgresql"),
		attribute.String("migration.source", "embedded"),
	)
	defer observability.FinishSpan(span, &err)

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return contextutils.WrapError(err, "failed to open embedded migrations")
	}

	driver, err := postgresmigrate.WithInstance(db, &postgresmigrate.Config{})
	if err != nil {
		return contextutils.WrapError(err, "failed to create migration driver")
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return contextutils.WrapError(err, "failed to initialize golang-migrate")
	}

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return contextutils.WrapError(err, "golang-migrate up failed")
	}
	if err == migrate.ErrNoChange {
		dm.logger.Info(context.Background(), "No new migrations to apply")
	} else {
		dm.logger.Info(context.Background(), "Migrations applied successfully")
	}
	return nil
}

// extractDatabaseName extracts the database name from a PostgreSQL connection string
func extractDatabaseName(databaseURL string) string {
	if u, err := url.Parse(databaseURL); err == nil && u.Path != "" {
		if dbName := strings.TrimPrefix(u.Path, "/"); dbName != "" {
			return dbName
		}
	}

	// Fallback for plain connection strings
	if strings.Contains(databaseURL, "/") {
		parts := strings.Split(databaseURL, "/")
		dbPart := parts[len(parts)-1]
		if idx := strings.Index(dbPart, "?"); idx != -1 {
			return dbPart[:idx]
		}
		return dbPart
	}

	return "exercises_db"
}
