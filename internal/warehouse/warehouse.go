// Storepulse - Real-Time Storefront Presence Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storepulse

package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tomtom215/storepulse/internal/logging"
)

// Defaults for archived rows.
const (
	DefaultBatchSize     = 100
	DefaultWindowSeconds = 60
)

// ErrDisabled is returned by callers that need a warehouse when none is configured.
var ErrDisabled = errors.New("warehouse is disabled")

// Config holds warehouse settings.
type Config struct {
	// Path is the DuckDB file. ":memory:" keeps everything in process.
	Path string

	// BatchSize is the number of rows per INSERT statement. Default: 100
	BatchSize int
}

// Warehouse is the DuckDB-backed presence history store.
type Warehouse struct {
	conn      *sql.DB
	batchSize int
}

// Open opens (or creates) the database and its tables.
func Open(cfg Config) (*Warehouse, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("warehouse path is required")
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}

	connStr := cfg.Path + "?access_mode=read_write&autoinstall_known_extensions=false&autoload_known_extensions=false"
	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open warehouse: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to ping warehouse: %w", err)
	}

	w := &Warehouse{conn: conn, batchSize: batch}
	if err := w.createTables(); err != nil {
		closeQuietly(conn)
		return nil, err
	}

	logging.Info().Str("path", cfg.Path).Int("batch_size", batch).Msg("Presence warehouse ready")
	return w, nil
}

// Ping checks the connection.
func (w *Warehouse) Ping(ctx context.Context) error {
	return w.conn.PingContext(ctx)
}

// Close closes the database.
func (w *Warehouse) Close() error {
	return w.conn.Close()
}

func closeQuietly(conn *sql.DB) {
	if err := conn.Close(); err != nil {
		logging.Debug().Err(err).Msg("Error closing warehouse connection")
	}
}
