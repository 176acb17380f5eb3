// Package oracle wraps the external generative-text completion capability.
// The contract is deliberately narrow: one prompt in, one text answer out,
// a single attempt bounded by timeout, and a three-way failure taxonomy.
// Every caller must validate the text before trusting it and must carry a
// deterministic fallback for when the call fails.
package oracle

import (
	"context"
	"errors"
)

// Failure taxonomy. Callers branch on these with errors.Is and must not
// depend on any finer-grained cause.
var (
	// ErrUnconfigured means no credential is present. Expected in local
	// setups, handled by immediate fallback rather than reported.
	ErrUnconfigured = errors.New("oracle: not configured")

	// ErrUnavailable covers timeouts, network failures, and quota limits.
	ErrUnavailable = errors.New("oracle: unavailable")

	// ErrUnknown covers everything else the upstream service can produce.
	ErrUnknown = errors.New("oracle: unknown error")
)

// Client is the completion contract. Complete performs exactly one attempt,
// bounded by the configured timeout. No retries happen at this layer.
type Client interface {
	// Complete sends prompt and returns the raw response text.
	Complete(ctx context.Context, prompt string) (string, error)

	// Configured reports whether a credential is present. When false,
	// Complete always returns ErrUnconfigured without a network call.
	Configured() bool
}

// unconfigured is the null client used when no credential exists.
type unconfigured struct{}

func (unconfigured) Complete(ctx context.Context, prompt string) (string, error) {
	return "", ErrUnconfigured
}

func (unconfigured) Configured() bool { return false }

// Unconfigured returns a client that rejects every call with
// ErrUnconfigured. It lets the engines run their fallback paths without
// nil checks.
func Unconfigured() Client { return unconfigured{} }
