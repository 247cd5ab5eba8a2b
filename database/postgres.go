package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/fenilmodi00/parcel-backend/shared"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// Connect opens the underlying database handle. The engine does not use
// database/sql's implicit pooling for checkout accounting; the explicit
// ConnectionPool sits on top of this handle via NewConnFactory, so max open
// connections is pinned to the pool capacity.
func Connect(dbURL string, config *shared.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(config.PoolSize)
	db.SetMaxIdleConns(config.PoolSize)

	ctx, cancel := context.WithTimeout(context.Background(), config.PingTimeout)
	defer cancel()

	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"pool_size":       config.PoolSize,
		"acquire_timeout": config.AcquireTimeout,
	}).Info("Connected to database successfully")

	return db, nil
}

// NewConnFactory returns a ConnFactory that checks dedicated connections out
// of the sql.DB handle.
func NewConnFactory(db *sql.DB) ConnFactory {
	return func(ctx context.Context) (Conn, error) {
		return db.Conn(ctx)
	}
}

// Migrate applies the schema file, statement by statement. Errors on
// individual statements are logged and skipped so that re-running migrations
// against an existing schema stays idempotent.
func Migrate(db *sql.DB, schemaPath string) error {
	content, err := os.ReadFile(schemaPath)
	if err != nil {
		return fmt.Errorf("failed to read schema file: %w", err)
	}

	statements := parseSQLStatements(string(content))
	applied := 0
	for _, statement := range statements {
		if _, err := db.Exec(statement); err != nil {
			logrus.WithError(err).WithField("statement", firstLine(statement)).Warn("Migration statement failed, skipping")
			continue
		}
		applied++
	}

	logrus.WithFields(logrus.Fields{
		"total_statements":   len(statements),
		"applied_statements": applied,
	}).Info("Database migration completed")

	return nil
}

// HealthCheck verifies connectivity and that the records table is reachable.
func HealthCheck(ctx context.Context, db *sql.DB) error {
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM property_records").Scan(&count); err != nil {
		return fmt.Errorf("property_records table check failed: %w", err)
	}

	logrus.WithField("record_count", count).Debug("Database health check passed")
	return nil
}

// parseSQLStatements splits schema content into executable statements,
// dropping line comments and empty fragments.
func parseSQLStatements(content string) []string {
	var cleaned []string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "--") {
			continue
		}
		cleaned = append(cleaned, line)
	}

	var statements []string
	for _, statement := range strings.Split(strings.Join(cleaned, "\n"), ";") {
		statement = strings.TrimSpace(statement)
		if statement != "" {
			statements = append(statements, statement)
		}
	}
	return statements
}

func firstLine(statement string) string {
	if idx := strings.IndexByte(statement, '\n'); idx >= 0 {
		return statement[:idx]
	}
	return statement
}
