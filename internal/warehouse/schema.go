// Storepulse - Real-Time Storefront Presence Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storepulse

package warehouse

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

func tableCreationQueries() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS active_users_minutely (
			shop VARCHAR NOT NULL,
			bucket_ts TIMESTAMP NOT NULL,
			au_raw INTEGER NOT NULL,
			total_tabs INTEGER NOT NULL,
			au_ema_fast DOUBLE NOT NULL,
			au_ema_slow DOUBLE NOT NULL,
			window_seconds INTEGER NOT NULL DEFAULT 60,
			PRIMARY KEY (shop, bucket_ts)
		)`,
		`CREATE TABLE IF NOT EXISTS active_users_daily (
			shop VARCHAR NOT NULL,
			day DATE NOT NULL,
			avg_au_raw DOUBLE NOT NULL,
			p95_au_raw DOUBLE NOT NULL,
			max_au_raw INTEGER NOT NULL,
			max_au_raw_at TIMESTAMP NOT NULL,
			avg_au_ema DOUBLE NOT NULL,
			minutes_observed INTEGER NOT NULL,
			PRIMARY KEY (shop, day)
		)`,
		`CREATE TABLE IF NOT EXISTS active_users_state (
			shop VARCHAR PRIMARY KEY,
			last_timestamp BIGINT NOT NULL,
			ema_fast DOUBLE NOT NULL,
			ema_slow DOUBLE NOT NULL,
			last_raw_count INTEGER NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
	}
}

// createTables creates the warehouse tables if they do not exist.
func (w *Warehouse) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range tableCreationQueries() {
		if _, err := w.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}
