// Package directory is the PostgreSQL-backed enrollment directory: employee
// records, installed face templates, and enrollment audit history. The kiosk
// reads it to fill the in-memory template store; the enrollment workflow is
// its only writer.
package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/attendance-kiosk/internal/config"
	_ "github.com/lib/pq"
)

// Pool manages a PostgreSQL connection pool.
type Pool struct {
	db *sql.DB
}

// NewPool creates a new PostgreSQL connection pool.
func NewPool(cfg *config.DirectoryConfig) (*Pool, error) {
	if cfg.URL == "" {
		return nil, errors.New("directory URL is required")
	}

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Pool{db: db}, nil
}

// DB returns the underlying sql.DB for direct access.
func (p *Pool) DB() *sql.DB {
	return p.db
}

// Close closes the connection pool.
func (p *Pool) Close() error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("closing database connection: %w", err)
		}
	}
	return nil
}

// descriptorDim is the fixed descriptor dimension stored in the directory.
const descriptorDim = 512

// Migrate creates the directory schema.
func Migrate(ctx context.Context, pool *Pool) error {
	if _, err := pool.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createEmployees := `
		CREATE TABLE IF NOT EXISTS employees (
			id              VARCHAR(255) PRIMARY KEY,
			code            VARCHAR(64) NOT NULL UNIQUE,
			name            VARCHAR(255) NOT NULL,
			active          BOOLEAN NOT NULL DEFAULT TRUE,
			face_registered BOOLEAN NOT NULL DEFAULT FALSE,
			created_at      TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`
	if _, err := pool.db.ExecContext(ctx, createEmployees); err != nil {
		return fmt.Errorf("failed to create employees table: %w", err)
	}

	createTemplates := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS face_templates (
			id            BIGSERIAL PRIMARY KEY,
			employee_id   VARCHAR(255) NOT NULL REFERENCES employees(id),
			pose_index    INTEGER NOT NULL,
			embedding     vector(%d) NOT NULL,
			quality       DOUBLE PRECISION NOT NULL,
			enrollment_id VARCHAR(255) NOT NULL,
			enrolled_at   TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			UNIQUE(employee_id, pose_index)
		)
	`, descriptorDim)
	if _, err := pool.db.ExecContext(ctx, createTemplates); err != nil {
		return fmt.Errorf("failed to create face_templates table: %w", err)
	}

	if _, err := pool.db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS face_templates_employee_idx ON face_templates(employee_id)
	`); err != nil {
		return fmt.Errorf("failed to create face_templates employee index: %w", err)
	}

	createAudits := `
		CREATE TABLE IF NOT EXISTS enrollment_audits (
			id             VARCHAR(255) PRIMARY KEY,
			employee_id    VARCHAR(255) NOT NULL,
			device_id      VARCHAR(255) NOT NULL,
			outcome        VARCHAR(32) NOT NULL,
			failure_reason TEXT NOT NULL DEFAULT '',
			mean_quality   DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_at     TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`
	if _, err := pool.db.ExecContext(ctx, createAudits); err != nil {
		return fmt.Errorf("failed to create enrollment_audits table: %w", err)
	}

	return nil
}
