// Package auth provides API key validation, per-key rate limiting, and the
// HTTP authentication middleware for the mission gateway.
package auth

import (
	"crypto/subtle"
	"errors"
)

// HeaderAPIKey is the request header carrying the client API key.
const HeaderAPIKey = "X-API-Key"

// ErrNoKeys is returned when a KeyStore is constructed without any keys.
// The process must refuse to start in that case.
var ErrNoKeys = errors.New("auth: no API keys configured")

// KeyStore holds the set of valid API keys. It is immutable after
// construction and safe for concurrent use.
type KeyStore struct {
	keys [][]byte
}

// NewKeyStore builds a store from the configured key set.
func NewKeyStore(keys []string) (*KeyStore, error) {
	if len(keys) == 0 {
		return nil, ErrNoKeys
	}
	ks := &KeyStore{keys: make([][]byte, 0, len(keys))}
	for _, k := range keys {
		if k == "" {
			continue
		}
		ks.keys = append(ks.keys, []byte(k))
	}
	if len(ks.keys) == 0 {
		return nil, ErrNoKeys
	}
	return ks, nil
}

// IsValid performs a timing-safe membership test of candidate against every
// configured key. Every key is compared even after a match so that response
// latency does not reveal which key matched or how much of it did.
func (ks *KeyStore) IsValid(candidate string) bool {
	if candidate == "" {
		return false
	}
	cand := []byte(candidate)
	matched := 0
	for _, key := range ks.keys {
		// ConstantTimeCompare rejects unequal lengths without scanning, so
		// fold the length check into the comparison input instead.
		if subtle.ConstantTimeEq(int32(len(cand)), int32(len(key))) == 1 {
			matched |= subtle.ConstantTimeCompare(cand, key)
		} else {
			// Burn an equivalent comparison against the key itself.
			subtle.ConstantTimeCompare(key, key)
		}
	}
	return matched == 1
}
