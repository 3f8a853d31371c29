// Storepulse - Real-Time Storefront Presence Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storepulse

package presence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/tomtom215/storepulse/internal/config"
	"github.com/tomtom215/storepulse/internal/ema"
)

// maxCASAttempts bounds the optimistic retry loop of one mutation.
const maxCASAttempts = 16

// errCASExhausted is returned when a document kept changing under us.
var errCASExhausted = errors.New("presence document contended, giving up")

// memberDoc is the value of a v.<shop64> or s.<shop64> key.
type memberDoc map[string]int64

// KVStore is a Backend on a NATS JetStream KeyValue bucket. It is safe to
// share one bucket between several service instances.
type KVStore struct {
	kv   jetstream.KeyValue
	opts Options
}

// OpenKVStore creates or binds the bucket and returns a store on it.
func OpenKVStore(ctx context.Context, js jetstream.JetStream, bucket string, opts Options) (*KVStore, error) {
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "storefront presence and EMA state",
		History:     1,
		Storage:     jetstream.FileStorage,
	})
	if err != nil {
		return nil, fmt.Errorf("create presence kv bucket %q: %w", bucket, err)
	}
	return NewKVStore(kv, opts), nil
}

// NewKVStore wraps an existing bucket.
func NewKVStore(kv jetstream.KeyValue, opts Options) *KVStore {
	return &KVStore{kv: kv, opts: opts.withDefaults()}
}

// Name implements Backend.
func (s *KVStore) Name() string { return config.BackendNATS }

func kvKey(ns, shop string) string {
	return ns + "." + encodeShop(shop)
}

// isConflict reports whether a write lost a compare-and-swap race.
func isConflict(err error) bool {
	if errors.Is(err, jetstream.ErrKeyExists) {
		return true
	}
	var apiErr *jetstream.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
}

// loadDoc returns the document and its revision; revision 0 means absent.
func (s *KVStore) loadDoc(ctx context.Context, key string) (memberDoc, uint64, error) {
	entry, err := s.kv.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return memberDoc{}, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	doc := memberDoc{}
	if len(entry.Value()) > 0 {
		if err := json.Unmarshal(entry.Value(), &doc); err != nil {
			return nil, 0, fmt.Errorf("decode %s: %w", key, err)
		}
	}
	return doc, entry.Revision(), nil
}

// mutate applies fn to the document under key with compare-and-swap.
// fn reports whether it changed anything; unchanged documents are not written.
// A document left empty is deleted.
func (s *KVStore) mutate(ctx context.Context, key string, fn func(memberDoc) bool) error {
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		doc, rev, err := s.loadDoc(ctx, key)
		if err != nil {
			return err
		}
		if !fn(doc) {
			return nil
		}

		if len(doc) == 0 {
			if rev == 0 {
				return nil
			}
			err = s.kv.Delete(ctx, key, jetstream.LastRevision(rev))
		} else {
			var data []byte
			data, err = json.Marshal(doc)
			if err != nil {
				return fmt.Errorf("encode %s: %w", key, err)
			}
			if rev == 0 {
				_, err = s.kv.Create(ctx, key, data)
			} else {
				_, err = s.kv.Update(ctx, key, data, rev)
			}
		}

		if err == nil {
			return nil
		}
		if !isConflict(err) {
			return fmt.Errorf("write %s: %w", key, err)
		}
	}
	return fmt.Errorf("%s: %w", key, errCASExhausted)
}

// AddOrRefresh implements Store. Members past the sweep horizon are pruned
// from the document on the same write.
func (s *KVStore) AddOrRefresh(ctx context.Context, shop, visitorID, sessionID string, now time.Time) error {
	expiry := s.opts.expiryFor(now)
	cutoff := s.opts.sweepCutoff(now)

	refresh := func(member string) func(memberDoc) bool {
		return func(doc memberDoc) bool {
			pruneBefore(doc, cutoff)
			doc[member] = expiry
			return true
		}
	}

	if err := s.mutate(ctx, kvKey(nsVisitors, shop), refresh(memberKey(visitorID))); err != nil {
		return fmt.Errorf("refresh visitor: %w", err)
	}
	if err := s.mutate(ctx, kvKey(nsSessions, shop), refresh(memberKey(sessionID))); err != nil {
		return fmt.Errorf("refresh session: %w", err)
	}
	return nil
}

// Remove implements Store.
func (s *KVStore) Remove(ctx context.Context, shop, visitorID, sessionID string) error {
	drop := func(member string) func(memberDoc) bool {
		return func(doc memberDoc) bool {
			if _, ok := doc[member]; !ok {
				return false
			}
			delete(doc, member)
			return true
		}
	}

	if err := s.mutate(ctx, kvKey(nsVisitors, shop), drop(memberKey(visitorID))); err != nil {
		return fmt.Errorf("remove visitor: %w", err)
	}
	if err := s.mutate(ctx, kvKey(nsSessions, shop), drop(memberKey(sessionID))); err != nil {
		return fmt.Errorf("remove session: %w", err)
	}
	return nil
}

// CountActive implements Store.
func (s *KVStore) CountActive(ctx context.Context, shop string, now time.Time) (int, error) {
	doc, _, err := s.loadDoc(ctx, kvKey(nsVisitors, shop))
	if err != nil {
		return 0, fmt.Errorf("count visitors: %w", err)
	}
	return countLive(doc, now.UnixMilli()), nil
}

// CountSessions implements Backend.
func (s *KVStore) CountSessions(ctx context.Context, shop string, now time.Time) (int, error) {
	doc, _, err := s.loadDoc(ctx, kvKey(nsSessions, shop))
	if err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return countLive(doc, now.UnixMilli()), nil
}

// SweepExpired implements Store.
func (s *KVStore) SweepExpired(ctx context.Context, shop string, now time.Time) (int, error) {
	cutoff := s.opts.sweepCutoff(now)
	total := 0

	for _, ns := range []string{nsVisitors, nsSessions} {
		removed := 0
		err := s.mutate(ctx, kvKey(ns, shop), func(doc memberDoc) bool {
			removed = pruneBefore(doc, cutoff)
			return removed > 0
		})
		if err != nil {
			return total, fmt.Errorf("sweep %s: %w", ns, err)
		}
		total += removed
	}
	return total, nil
}

// GetEMAState implements Store.
func (s *KVStore) GetEMAState(ctx context.Context, shop string) (*ema.State, error) {
	entry, err := s.kv.Get(ctx, kvKey(nsEMA, shop))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ema state: %w", err)
	}
	var state ema.State
	if err := json.Unmarshal(entry.Value(), &state); err != nil {
		return nil, fmt.Errorf("decode ema state: %w", err)
	}
	return &state, nil
}

// SetEMAState implements Store. Last write wins across instances.
func (s *KVStore) SetEMAState(ctx context.Context, state ema.State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal ema state: %w", err)
	}
	if _, err := s.kv.Put(ctx, kvKey(nsEMA, state.Shop), data); err != nil {
		return fmt.Errorf("put ema state: %w", err)
	}
	return nil
}

// Shops implements Backend.
func (s *KVStore) Shops(ctx context.Context) ([]string, error) {
	lister, err := s.kv.ListKeys(ctx)
	if errors.Is(err, jetstream.ErrNoKeysFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list presence keys: %w", err)
	}
	defer func() { _ = lister.Stop() }()

	set := make(map[string]struct{})
	for key := range lister.Keys() {
		_, encoded, ok := strings.Cut(key, ".")
		if !ok {
			continue
		}
		shop, err := decodeShop(encoded)
		if err != nil {
			continue
		}
		set[shop] = struct{}{}
	}
	return sortedKeys(set), nil
}

// Close implements Backend. The NATS connection is owned by the caller.
func (s *KVStore) Close() error { return nil }
