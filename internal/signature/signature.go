// Package signature derives stable content signatures from structured state.
// A signature is the SHA-256 of a canonical JSON serialization: map keys are
// sorted, list order is preserved (order is semantically meaningful, e.g.
// purchase recency). Identical logical input always yields an identical
// signature across calls and process restarts.
package signature

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Hash returns the hex-encoded SHA-256 of the canonical serialization of v.
// v must be JSON-serializable (maps, slices, primitives, or structs thereof).
func Hash(v interface{}) (string, error) {
	canon, err := Canonical(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// Canonical serializes v deterministically. The value is round-tripped
// through generic JSON so that struct inputs and map inputs with the same
// shape canonicalize identically, and so that all object keys come out
// sorted (encoding/json sorts map keys on marshal).
func Canonical(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("signature: marshal: %w", err)
	}

	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("signature: canonicalize: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(decoded); err != nil {
		return nil, fmt.Errorf("signature: encode: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
