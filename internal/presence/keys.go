// Storepulse - Real-Time Storefront Presence Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storepulse

package presence

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Namespaces inside a store.
const (
	nsVisitors = "v"
	nsSessions = "s"
	nsEMA      = "ema"
)

// memberDigestBytes is how much of the BLAKE2b-256 digest is kept.
const memberDigestBytes = 16

// encodeShop makes a shop domain safe for Badger prefixes and NATS KV keys.
func encodeShop(shop string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(shop))
}

func decodeShop(encoded string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode shop key %q: %w", encoded, err)
	}
	return string(raw), nil
}

// memberKey pseudonymizes a visitor or session identifier.
func memberKey(id string) string {
	sum := blake2b.Sum256([]byte(id))
	return hex.EncodeToString(sum[:memberDigestBytes])
}
