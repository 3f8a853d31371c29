// Storepulse - Real-Time Storefront Presence Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storepulse

package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/storepulse/internal/ema"
	"github.com/tomtom215/storepulse/internal/metrics"
)

// MinutelyRow is one archived reading.
type MinutelyRow struct {
	Shop          string    `json:"shop"`
	BucketTs      time.Time `json:"bucketTs"`
	AURaw         int       `json:"auRaw"`
	TotalTabs     int       `json:"totalTabs"`
	EMAFast       float64   `json:"auEmaFast"`
	EMASlow       float64   `json:"auEmaSlow"`
	WindowSeconds int       `json:"windowSeconds"`
}

// DailyRow is the rollup of one shop's minutely rows for one UTC day.
type DailyRow struct {
	Shop            string    `json:"shop"`
	Day             time.Time `json:"day"`
	AvgAURaw        float64   `json:"avgAuRaw"`
	P95AURaw        float64   `json:"p95AuRaw"`
	MaxAURaw        int       `json:"maxAuRaw"`
	MaxAURawAt      time.Time `json:"maxAuRawAt"`
	AvgAUEMA        float64   `json:"avgAuEma"`
	MinutesObserved int       `json:"minutesObserved"`
}

// BucketFor truncates a unix-millisecond timestamp to its UTC minute.
func BucketFor(tsMs int64) time.Time {
	return time.UnixMilli(tsMs).UTC().Truncate(time.Minute)
}

const minutelyColumns = 7

// AppendMinutely upserts rows in batches and returns how many were written.
// Rows sharing (shop, bucket) collapse to the last one.
func (w *Warehouse) AppendMinutely(ctx context.Context, rows []MinutelyRow) (n int, err error) {
	start := time.Now()
	defer func() { metrics.RecordWarehouseOperation("append_minutely", time.Since(start), err) }()

	rows = dedupeMinutely(rows)
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := w.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin minutely append: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for lo := 0; lo < len(rows); lo += w.batchSize {
		hi := lo + w.batchSize
		if hi > len(rows) {
			hi = len(rows)
		}
		batch := rows[lo:hi]

		query := "INSERT OR REPLACE INTO active_users_minutely " +
			"(shop, bucket_ts, au_raw, total_tabs, au_ema_fast, au_ema_slow, window_seconds) VALUES " +
			placeholders(len(batch), minutelyColumns)

		args := make([]interface{}, 0, len(batch)*minutelyColumns)
		for _, r := range batch {
			window := r.WindowSeconds
			if window <= 0 {
				window = DefaultWindowSeconds
			}
			args = append(args, r.Shop, r.BucketTs.UTC(), r.AURaw, r.TotalTabs, r.EMAFast, r.EMASlow, window)
		}

		if _, err = tx.ExecContext(ctx, query, args...); err != nil {
			return 0, fmt.Errorf("insert minutely batch: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit minutely append: %w", err)
	}

	metrics.RecordWarehouseRows("active_users_minutely", len(rows))
	return len(rows), nil
}

func dedupeMinutely(rows []MinutelyRow) []MinutelyRow {
	type key struct {
		shop   string
		bucket int64
	}
	index := make(map[key]int, len(rows))
	out := make([]MinutelyRow, 0, len(rows))
	for _, r := range rows {
		k := key{r.Shop, r.BucketTs.UnixMilli()}
		if i, ok := index[k]; ok {
			out[i] = r
			continue
		}
		index[k] = len(out)
		out = append(out, r)
	}
	return out
}

// placeholders returns "(?, ?), (?, ?)" for rows x cols.
func placeholders(rows, cols int) string {
	group := "(" + strings.TrimSuffix(strings.Repeat("?, ", cols), ", ") + ")"
	parts := make([]string, rows)
	for i := range parts {
		parts[i] = group
	}
	return strings.Join(parts, ", ")
}

// RollupDaily aggregates the minutely rows of the UTC day containing day
// and returns the number of shops rolled up. Re-running it replaces the
// previous result.
func (w *Warehouse) RollupDaily(ctx context.Context, day time.Time) (n int64, err error) {
	start := time.Now()
	defer func() { metrics.RecordWarehouseOperation("rollup_daily", time.Since(start), err) }()

	from := day.UTC().Truncate(24 * time.Hour)
	to := from.Add(24 * time.Hour)

	res, err := w.conn.ExecContext(ctx, `
		INSERT OR REPLACE INTO active_users_daily
			(shop, day, avg_au_raw, p95_au_raw, max_au_raw, max_au_raw_at, avg_au_ema, minutes_observed)
		SELECT
			shop,
			CAST(bucket_ts AS DATE),
			avg(au_raw),
			quantile_cont(au_raw, 0.95),
			max(au_raw),
			arg_max(bucket_ts, au_raw),
			avg(au_ema_slow),
			count(*)
		FROM active_users_minutely
		WHERE bucket_ts >= ? AND bucket_ts < ?
		GROUP BY shop, CAST(bucket_ts AS DATE)`, from, to)
	if err != nil {
		return 0, fmt.Errorf("rollup %s: %w", from.Format(time.DateOnly), err)
	}

	n, err = res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rollup rows affected: %w", err)
	}
	metrics.RecordWarehouseRows("active_users_daily", int(n))
	return n, nil
}

// SaveStates upserts the EMA state of each shop.
func (w *Warehouse) SaveStates(ctx context.Context, states []ema.State) (err error) {
	if len(states) == 0 {
		return nil
	}
	start := time.Now()
	defer func() { metrics.RecordWarehouseOperation("save_states", time.Since(start), err) }()

	seen := make(map[string]int, len(states))
	unique := make([]ema.State, 0, len(states))
	for _, s := range states {
		if i, ok := seen[s.Shop]; ok {
			unique[i] = s
			continue
		}
		seen[s.Shop] = len(unique)
		unique = append(unique, s)
	}

	now := time.Now().UTC()
	args := make([]interface{}, 0, len(unique)*6)
	for _, s := range unique {
		args = append(args, s.Shop, s.LastTimestamp, s.EMAFast, s.EMASlow, s.LastRawCount, now)
	}

	query := "INSERT OR REPLACE INTO active_users_state " +
		"(shop, last_timestamp, ema_fast, ema_slow, last_raw_count, updated_at) VALUES " +
		placeholders(len(unique), 6)
	if _, err = w.conn.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save ema states: %w", err)
	}
	metrics.RecordWarehouseRows("active_users_state", len(unique))
	return nil
}

// State returns the archived EMA state of shop, or nil.
func (w *Warehouse) State(ctx context.Context, shop string) (*ema.State, error) {
	var s ema.State
	err := w.conn.QueryRowContext(ctx, `
		SELECT shop, last_timestamp, ema_fast, ema_slow, last_raw_count
		FROM active_users_state WHERE shop = ?`, shop).
		Scan(&s.Shop, &s.LastTimestamp, &s.EMAFast, &s.EMASlow, &s.LastRawCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load archived state: %w", err)
	}
	return &s, nil
}

// Minutely returns the rows of shop with from <= bucket_ts <= to, oldest first.
func (w *Warehouse) Minutely(ctx context.Context, shop string, from, to time.Time) (out []MinutelyRow, err error) {
	start := time.Now()
	defer func() { metrics.RecordWarehouseOperation("query_minutely", time.Since(start), err) }()

	rows, err := w.conn.QueryContext(ctx, `
		SELECT shop, bucket_ts, au_raw, total_tabs, au_ema_fast, au_ema_slow, window_seconds
		FROM active_users_minutely
		WHERE shop = ? AND bucket_ts >= ? AND bucket_ts <= ?
		ORDER BY bucket_ts ASC`, shop, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("query minutely: %w", err)
	}
	defer rows.Close()

	out = []MinutelyRow{}
	for rows.Next() {
		var r MinutelyRow
		if err := rows.Scan(&r.Shop, &r.BucketTs, &r.AURaw, &r.TotalTabs, &r.EMAFast, &r.EMASlow, &r.WindowSeconds); err != nil {
			return nil, fmt.Errorf("scan minutely: %w", err)
		}
		r.BucketTs = r.BucketTs.UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// Daily returns the rollups of shop for days in [from, to], oldest first.
func (w *Warehouse) Daily(ctx context.Context, shop string, from, to time.Time) (out []DailyRow, err error) {
	start := time.Now()
	defer func() { metrics.RecordWarehouseOperation("query_daily", time.Since(start), err) }()

	rows, err := w.conn.QueryContext(ctx, `
		SELECT shop, day, avg_au_raw, p95_au_raw, max_au_raw, max_au_raw_at, avg_au_ema, minutes_observed
		FROM active_users_daily
		WHERE shop = ? AND day >= CAST(? AS DATE) AND day <= CAST(? AS DATE)
		ORDER BY day ASC`, shop, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("query daily: %w", err)
	}
	defer rows.Close()

	out = []DailyRow{}
	for rows.Next() {
		var r DailyRow
		if err := rows.Scan(&r.Shop, &r.Day, &r.AvgAURaw, &r.P95AURaw, &r.MaxAURaw, &r.MaxAURawAt, &r.AvgAUEMA, &r.MinutesObserved); err != nil {
			return nil, fmt.Errorf("scan daily: %w", err)
		}
		r.Day = r.Day.UTC()
		r.MaxAURawAt = r.MaxAURawAt.UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}
