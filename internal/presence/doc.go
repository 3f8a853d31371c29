// Storepulse - Real-Time Storefront Presence Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storepulse

/*
Package presence tracks which visitors are currently on each storefront.

Every heartbeat refreshes a visitor entry and a session (browser tab) entry
whose expiry is the server time plus the TTL (30s). Counting is lazy: an entry
whose expiry is before "now" is simply not counted, whether or not the sweeper
has removed it yet. The sweeper only deletes entries that expired more than
MaxAge (5m) ago, which keeps storage bounded without racing live heartbeats.

# Backends

  - MemoryStore: maps behind a mutex. Used for tests and as the degraded
    in-process fallback when the durable backend cannot be opened.
  - BadgerStore: local durable store. Entries carry a Badger TTL so storage
    stays bounded even without sweeps.
  - KVStore: NATS JetStream KeyValue, shared across instances. Each store and
    namespace is one document updated with compare-and-swap on the revision.

Durable backends never store raw visitor or session identifiers; members are
keyed by a truncated BLAKE2b digest.

ResilientStore wraps a durable backend with a circuit breaker and turns
failures into safe defaults (zero counts, no state) plus a degraded health
signal, so the HTTP path never fails because the store is unreachable.

# Coordinator

Coordinator is the heartbeat pipeline:

	validate -> load EMA state -> refresh or remove -> count
	  -> update EMA -> persist -> publish snapshot -> ack

Presence always follows the server clock. A client timestamp that does not
advance the shop's EMA state only drops that EMA sample; the signal is still
counted and published, and Handle reports ema.ErrOutOfOrder.

Per-store serialization of the EMA read-modify-write is on by default and
can be turned off with presence.serialize_ema. Shops hash onto a fixed set
of lock stripes.
*/
package presence
