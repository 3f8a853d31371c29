// Storepulse - Real-Time Storefront Presence Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storepulse

package presence

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/storepulse/internal/config"
	"github.com/tomtom215/storepulse/internal/ema"
)

// Key layout:
//
//	presence:v:<shop64>:<member>   -> expiry (8 bytes, big endian, unix ms)
//	presence:s:<shop64>:<member>   -> expiry
//	presence:ema:<shop64>          -> JSON ema.State
const badgerKeyPrefix = "presence:"

// BadgerStore is a durable local Backend on BadgerDB.
type BadgerStore struct {
	db     *badger.DB
	opts   Options
	ownsDB bool
}

// OpenBadgerStore opens (or creates) a Badger database at path. An empty
// path runs Badger fully in memory.
func OpenBadgerStore(path string, opts Options) (*BadgerStore, error) {
	var bopts badger.Options
	if path == "" {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		bopts = badger.DefaultOptions(path)
	}
	bopts.Logger = nil // Suppress BadgerDB logs

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger db for presence: %w", err)
	}

	s := NewBadgerStore(db, opts)
	s.ownsDB = true
	return s, nil
}

// NewBadgerStore wraps an existing database. The caller keeps ownership.
func NewBadgerStore(db *badger.DB, opts Options) *BadgerStore {
	return &BadgerStore{db: db, opts: opts.withDefaults()}
}

// Name implements Backend.
func (s *BadgerStore) Name() string { return config.BackendBadger }

func memberPrefix(ns, shop string) []byte {
	return []byte(badgerKeyPrefix + ns + ":" + encodeShop(shop) + ":")
}

func emaKey(shop string) []byte {
	return []byte(badgerKeyPrefix + nsEMA + ":" + encodeShop(shop))
}

func encodeExpiry(ms int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(ms))
	return buf
}

func decodeExpiry(val []byte) (int64, error) {
	if len(val) != 8 {
		return 0, fmt.Errorf("corrupt presence entry: %d bytes", len(val))
	}
	return int64(binary.BigEndian.Uint64(val)), nil
}

// AddOrRefresh implements Store.
func (s *BadgerStore) AddOrRefresh(_ context.Context, shop, visitorID, sessionID string, now time.Time) error {
	expiry := s.opts.expiryFor(now)
	value := encodeExpiry(expiry)
	// Badger drops the key on its own once it would have been swept anyway.
	ttl := s.opts.TTL + s.opts.MaxAge

	return s.db.Update(func(txn *badger.Txn) error {
		vKey := append(memberPrefix(nsVisitors, shop), memberKey(visitorID)...)
		if err := txn.SetEntry(badger.NewEntry(vKey, value).WithTTL(ttl)); err != nil {
			return fmt.Errorf("set visitor: %w", err)
		}
		sKey := append(memberPrefix(nsSessions, shop), memberKey(sessionID)...)
		if err := txn.SetEntry(badger.NewEntry(sKey, value).WithTTL(ttl)); err != nil {
			return fmt.Errorf("set session: %w", err)
		}
		return nil
	})
}

// Remove implements Store.
func (s *BadgerStore) Remove(_ context.Context, shop, visitorID, sessionID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		vKey := append(memberPrefix(nsVisitors, shop), memberKey(visitorID)...)
		if err := txn.Delete(vKey); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("delete visitor: %w", err)
		}
		sKey := append(memberPrefix(nsSessions, shop), memberKey(sessionID)...)
		if err := txn.Delete(sKey); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("delete session: %w", err)
		}
		return nil
	})
}

// CountActive implements Store.
func (s *BadgerStore) CountActive(_ context.Context, shop string, now time.Time) (int, error) {
	return s.countLive(memberPrefix(nsVisitors, shop), now.UnixMilli())
}

// CountSessions implements Backend.
func (s *BadgerStore) CountSessions(_ context.Context, shop string, now time.Time) (int, error) {
	return s.countLive(memberPrefix(nsSessions, shop), now.UnixMilli())
}

func (s *BadgerStore) countLive(prefix []byte, nowMs int64) (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				expiry, err := decodeExpiry(val)
				if err != nil {
					return err
				}
				if expiry >= nowMs {
					count++
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count presence: %w", err)
	}
	return count, nil
}

// SweepExpired implements Store.
func (s *BadgerStore) SweepExpired(_ context.Context, shop string, now time.Time) (int, error) {
	cutoff := s.opts.sweepCutoff(now)

	var stale [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		for _, ns := range []string{nsVisitors, nsSessions} {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = memberPrefix(ns, shop)
			it := txn.NewIterator(opts)

			for it.Rewind(); it.Valid(); it.Next() {
				item := it.Item()
				err := item.Value(func(val []byte) error {
					expiry, err := decodeExpiry(val)
					if err != nil || expiry < cutoff {
						stale = append(stale, item.KeyCopy(nil))
					}
					return nil
				})
				if err != nil {
					it.Close()
					return err
				}
			}
			it.Close()
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan expired presence: %w", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range stale {
		if err := wb.Delete(key); err != nil {
			return 0, fmt.Errorf("delete expired presence: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("flush expired presence: %w", err)
	}
	return len(stale), nil
}

// GetEMAState implements Store.
func (s *BadgerStore) GetEMAState(_ context.Context, shop string) (*ema.State, error) {
	var state ema.State
	found := false

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(emaKey(shop))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &state)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("get ema state: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &state, nil
}

// SetEMAState implements Store.
func (s *BadgerStore) SetEMAState(_ context.Context, state ema.State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal ema state: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(emaKey(state.Shop), data)
	})
}

// Shops implements Backend.
func (s *BadgerStore) Shops(_ context.Context) ([]string, error) {
	set := make(map[string]struct{})

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(badgerKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			encoded, ok := shopFromKey(it.Item().Key())
			if !ok {
				continue
			}
			shop, err := decodeShop(encoded)
			if err != nil {
				continue
			}
			set[shop] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list shops: %w", err)
	}
	return sortedKeys(set), nil
}

// shopFromKey extracts <shop64> from any presence key.
func shopFromKey(key []byte) (string, bool) {
	rest := bytes.TrimPrefix(key, []byte(badgerKeyPrefix))
	parts := strings.SplitN(string(rest), ":", 3)
	if len(parts) < 2 || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// Close implements Backend. A database passed to NewBadgerStore is left open.
func (s *BadgerStore) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}
