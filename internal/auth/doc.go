// Storepulse - Real-Time Storefront Presence Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storepulse

// Package auth protects the presence history endpoints with shop-scoped
// HS256 tokens.
//
// Storefront traffic (heartbeats, counts, streams, the emitter script) is
// public by nature and never authenticated. History is merchant data, so when
// security.jwt_secret is set each history request must carry
//
//	Authorization: Bearer <token>
//
// where the token's "shop" claim equals the requested shop. With no secret
// configured RequireShopToken is a pass-through.
package auth
