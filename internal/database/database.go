package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Shoffly/dealer-visits/internal/models"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

var (
	// ErrNotFound is returned by point reads for an unknown visit id.
	ErrNotFound = errors.New("visit not found")
)

type DB struct {
	*sql.DB
	logger *zerolog.Logger
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return &DB{DB: db, logger: logger}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		// Visit requests. Status transitions go through conditional
		// updates; the CHECK only pins the allowed values.
		`CREATE TABLE IF NOT EXISTS visits (
            id TEXT PRIMARY KEY,
            car_name TEXT NOT NULL,
            request_id TEXT,
            dealer_name TEXT NOT NULL,
            dealer_phone_number TEXT NOT NULL,
            visit_date DATE NOT NULL,
            time_slot TEXT NOT NULL,
            car_location TEXT NOT NULL DEFAULT 'Unknown',
            agent_name TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'open'
                CHECK (status IN ('open', 'confirmed', 'cancelled')),
            notes TEXT,
            opened_by TEXT NOT NULL,
            opened_at DATETIME NOT NULL,
            confirmed_by TEXT,
            confirmed_at DATETIME,
            created_at DATETIME NOT NULL,
            updated_at DATETIME
        )`,

		// Daily fleet snapshot fed by the warehouse pipeline.
		`CREATE TABLE IF NOT EXISTS car_status (
            car_name TEXT NOT NULL,
            location_stage_name TEXT NOT NULL,
            allocation_category TEXT NOT NULL,
            current_status TEXT NOT NULL,
            date_key DATE NOT NULL,
            PRIMARY KEY (car_name, date_key)
        )`,

		// Dealer directory for form dropdowns.
		`CREATE TABLE IF NOT EXISTS dealers (
            dealer_code TEXT PRIMARY KEY,
            dealer_name TEXT NOT NULL,
            phone TEXT
        )`,

		// Movement queue mirror, read-only for the dashboard.
		`CREATE TABLE IF NOT EXISTS movement_requests (
            request_id TEXT PRIMARY KEY,
            dealer_name TEXT NOT NULL,
            car_name TEXT NOT NULL,
            request_type TEXT,
            request_status TEXT NOT NULL,
            buy_now_type TEXT,
            failure_reason TEXT,
            contacted_user TEXT,
            contacted_at DATETIME,
            created_at DATETIME NOT NULL
        )`,

		// Durable queue for the sheets mirror worker.
		`CREATE TABLE IF NOT EXISTS sync_queue (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            task_type TEXT NOT NULL,
            visit_id TEXT NOT NULL,
            payload TEXT,
            status TEXT NOT NULL DEFAULT 'pending',
            retry_count INTEGER NOT NULL DEFAULT 0,
            last_error TEXT,
            created_at DATETIME NOT NULL,
            processed_at DATETIME,
            next_retry_at DATETIME
        )`,

		`CREATE INDEX IF NOT EXISTS idx_visits_status ON visits(status)`,
		`CREATE INDEX IF NOT EXISTS idx_visits_opened_at ON visits(opened_at)`,
		`CREATE INDEX IF NOT EXISTS idx_visits_dealer ON visits(dealer_name)`,
		`CREATE INDEX IF NOT EXISTS idx_visits_date ON visits(visit_date)`,
		`CREATE INDEX IF NOT EXISTS idx_car_status_date ON car_status(date_key)`,
		`CREATE INDEX IF NOT EXISTS idx_movement_status ON movement_requests(request_status)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_queue_status ON sync_queue(status)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

// SeedDealers upserts the dealer directory from the config seed file.
func (db *DB) SeedDealers(ctx context.Context, dealers []models.Dealer) error {
	query := `INSERT INTO dealers (dealer_code, dealer_name, phone) VALUES (?, ?, ?)
              ON CONFLICT(dealer_code) DO UPDATE SET
                  dealer_name = excluded.dealer_name,
                  phone = COALESCE(excluded.phone, phone)`

	for _, d := range dealers {
		if d.Code == "" || d.Name == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, query, d.Code, d.Name, d.Phone); err != nil {
			return fmt.Errorf("failed to seed dealer %s: %w", d.Code, err)
		}
	}
	return nil
}

func (db *DB) Close() error {
	return db.DB.Close()
}
