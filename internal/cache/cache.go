// Package cache provides the generic TTL key-value cache used by the
// recommendation and search engines. Values are opaque bytes; JSON helpers
// cover the common typed case. TTL zero means the entry never expires
// (recommendation entries persist until overwritten by a signature change).
package cache

import (
	"encoding/json"
	"fmt"
	"time"
)

// Cache is the minimal contract the engines depend on. Misses are not
// errors: Get reports presence via its second return.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Close() error
}

// GetJSON reads key and unmarshals it into out. Returns false on miss or on
// an undecodable entry (a corrupt entry is indistinguishable from a miss for
// callers, which recompute either way).
func GetJSON(c Cache, key string, out interface{}) bool {
	data, ok := c.Get(key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false
	}
	return true
}

// SetJSON marshals v and stores it under key.
func SetJSON(c Cache, key string, v interface{}, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache: marshal %s: %w", key, err)
	}
	return c.Set(key, data, ttl)
}
