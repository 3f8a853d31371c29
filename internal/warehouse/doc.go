// Storepulse - Real-Time Storefront Presence Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storepulse

/*
Package warehouse stores presence history in DuckDB.

Tables:
  - active_users_minutely: one row per shop and minute bucket with the raw
    active-visitor count, open tabs and both moving averages.
  - active_users_daily: per-day rollup of the minutely rows (average, p95,
    peak and when it happened, average slow EMA, minutes observed).
  - active_users_state: the last archived EMA state of each shop.

All writes are idempotent: minutely rows are keyed by (shop, bucket_ts) and
daily rows by (shop, day), and both use INSERT OR REPLACE, so re-running an
archive or rollup for the same window overwrites instead of duplicating.

The live presence path never touches the warehouse. It is fed once per
minute by the archiver and read by the history endpoints.

Usage:

	wh, err := warehouse.Open(warehouse.Config{Path: "/data/storepulse.duckdb"})
	if err != nil {
	    return err
	}
	defer wh.Close()

	rows, err := wh.Minutely(ctx, "demo.myshopify.com", from, to)
*/
package warehouse
