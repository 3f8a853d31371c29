// Storepulse - Real-Time Storefront Presence Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storepulse

/*
Package broadcast republishes presence snapshots to live subscribers.

# Architecture

	Coordinator.Handle
	      |
	      v
	Publisher ---(watermill topic "presence.updates", metadata shop)---> Relay
	                                                                       |
	                                                                       v
	                                                                      Hub
	                                                                   /   |   \
	                                                            Stream  Stream  Client (WebSocket)

The Publisher writes one watermill message per snapshot. With the gochannel
transport the message stays in process; with the nats transport it goes over
core NATS so that every instance behind a load balancer sees every store's
updates. Delivery is best effort: there is no backlog and no replay.

A per-shop token bucket (golang.org/x/time/rate) caps how many snapshots a
single busy store can push per second. Excess snapshots are dropped and
counted; the periodic stream tick repairs any gap within one interval.

# Hub

The Hub keeps clients grouped by shop. Lifecycle events are handled before
broadcasts so that a client registered before a snapshot arrives always
receives it. A client whose buffer is full is dropped and its channel closed.

# Streams

Stream.Run drives one Server-Sent Events connection:

 1. Register with the hub for the shop.
 2. Write the current snapshot immediately.
 3. Write a freshly computed snapshot every tick, plus every relayed one.
 4. Return when the request context is canceled or the hub drops the client.

Client does the same for WebSocket dashboards using gorilla/websocket.
*/
package broadcast
