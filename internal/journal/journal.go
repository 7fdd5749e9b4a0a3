// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package journal persists committed tier transitions so their history survives restarts.
// SQLite is the default backend; PostgreSQL is used when a pgx DSN is configured.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3"    // SQLite driver
	log "github.com/sirupsen/logrus"
	"github.com/traylinx/perfgov/internal/tier"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"

	// DefaultTable holds the transition rows.
	DefaultTable = "perf_transitions"

	// DefaultHistoryLimit bounds History when no limit is given.
	DefaultHistoryLimit = 100
)

// Delivery states stored next to a transition.
const (
	DeliveryPending   = "pending"
	DeliveryConfirmed = "confirmed"
	DeliveryDropped   = "dropped"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Entry is one persisted transition.
type Entry struct {
	ID        int64          `json:"id"`
	ChangeID  string         `json:"change_id"`
	From      tier.Tier      `json:"from"`
	To        tier.Tier      `json:"to"`
	Direction tier.Direction `json:"direction"`
	Reason    tier.Reason    `json:"reason"`
	Rate      float64        `json:"rate"`
	At        time.Time      `json:"at"`
	Delivery  string         `json:"delivery"`
}

// EntryFor builds the row for a committed transition.
func EntryFor(tr tier.Transition, changeID string) Entry {
	return Entry{
		ChangeID:  changeID,
		From:      tr.From,
		To:        tr.To,
		Direction: tr.Direction,
		Reason:    tr.Reason,
		Rate:      tr.Rate,
		At:        tr.At,
		Delivery:  DeliveryPending,
	}
}

// Config selects the backend.
type Config struct {
	Driver string
	DSN    string
	Table  string
}

// Journal reads and writes transition rows.
type Journal struct {
	db     *sql.DB
	driver string
	table  string
}

// Open connects to the configured database and creates the table when missing.
func Open(ctx context.Context, cfg Config) (*Journal, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "sqlite", DriverSQLite:
		driver = DriverSQLite
	case "postgres", "postgresql", DriverPostgres:
		driver = DriverPostgres
	default:
		return nil, fmt.Errorf("unsupported journal driver %q", cfg.Driver)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("journal dsn cannot be empty")
	}

	if driver == DriverSQLite && !strings.HasPrefix(cfg.DSN, "file:") && cfg.DSN != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DSN), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}

	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to reach journal: %w", err)
	}

	j, err := New(db, driver, cfg.Table)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := j.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.WithField("component", "journal").Infof("Journal ready (%s, table %s)", driver, j.table)
	return j, nil
}

// New wraps an open database handle.
func New(db *sql.DB, driver, table string) (*Journal, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid journal table name %q", table)
	}
	return &Journal{db: db, driver: driver, table: table}, nil
}

// Migrate creates the table and its index.
func (j *Journal) Migrate(ctx context.Context) error {
	id := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if j.driver == DriverPostgres {
		id = "BIGSERIAL PRIMARY KEY"
	}
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id %s,
			change_id TEXT NOT NULL,
			from_tier TEXT NOT NULL,
			to_tier TEXT NOT NULL,
			direction TEXT NOT NULL,
			reason TEXT NOT NULL,
			rate DOUBLE PRECISION NOT NULL,
			at_ms BIGINT NOT NULL,
			delivery TEXT NOT NULL
		)`, j.table, id),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_change_id ON %s (change_id)", j.table, j.table),
	}
	for _, stmt := range stmts {
		if _, err := j.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create journal schema: %w", err)
		}
	}
	return nil
}

// Record inserts a transition.
func (j *Journal) Record(ctx context.Context, e Entry) error {
	if e.Delivery == "" {
		e.Delivery = DeliveryPending
	}
	query := fmt.Sprintf("INSERT INTO %s (change_id, from_tier, to_tier, direction, reason, rate, at_ms, delivery) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)", j.table)
	_, err := j.db.ExecContext(ctx, query,
		e.ChangeID, string(e.From), string(e.To), string(e.Direction), string(e.Reason), e.Rate, e.At.UnixMilli(), e.Delivery)
	if err != nil {
		return fmt.Errorf("failed to record transition %s: %w", e.ChangeID, err)
	}
	return nil
}

// SetDelivery updates the delivery state of a recorded change.
func (j *Journal) SetDelivery(ctx context.Context, changeID, delivery string) error {
	query := fmt.Sprintf("UPDATE %s SET delivery = $1 WHERE change_id = $2", j.table)
	if _, err := j.db.ExecContext(ctx, query, delivery, changeID); err != nil {
		return fmt.Errorf("failed to update delivery of %s: %w", changeID, err)
	}
	return nil
}

// History returns the most recent transitions, newest first.
func (j *Journal) History(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	query := fmt.Sprintf("SELECT id, change_id, from_tier, to_tier, direction, reason, rate, at_ms, delivery FROM %s ORDER BY id DESC LIMIT $1", j.table)
	rows, err := j.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	out := make([]Entry, 0, limit)
	for rows.Next() {
		var (
			e                           Entry
			from, to, direction, reason string
			atMs                        int64
		)
		if err := rows.Scan(&e.ID, &e.ChangeID, &from, &to, &direction, &reason, &e.Rate, &atMs, &e.Delivery); err != nil {
			return nil, fmt.Errorf("failed to scan journal row: %w", err)
		}
		e.From, e.To = tier.Tier(from), tier.Tier(to)
		e.Direction, e.Reason = tier.Direction(direction), tier.Reason(reason)
		e.At = time.UnixMilli(atMs)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close releases the database handle.
func (j *Journal) Close() error {
	return j.db.Close()
}
