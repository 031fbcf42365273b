package adapter

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// =====================================================
// ADAPTER REGISTRY
// =====================================================

// Registration pairs an adapter with its ordered secret list
type Registration struct {
	Adapter Adapter
	Secrets []string
}

// Registry maps provider names to adapters and their secrets.
// Immutable after construction; safe for concurrent reads.
type Registry struct {
	adapters map[string]Adapter
	secrets  map[string][]string
}

func NewRegistry(registrations ...Registration) *Registry {
	r := &Registry{
		adapters: make(map[string]Adapter, len(registrations)),
		secrets:  make(map[string][]string, len(registrations)),
	}
	for _, reg := range registrations {
		name := reg.Adapter.Name()
		r.adapters[name] = reg.Adapter
		r.secrets[name] = append([]string(nil), reg.Secrets...)
	}
	return r
}

// Adapter looks up the adapter for a provider
func (r *Registry) Adapter(provider string) (Adapter, bool) {
	a, ok := r.adapters[provider]
	return a, ok
}

// Secrets returns the ordered secret list for a provider
func (r *Registry) Secrets(provider string) []string {
	return r.secrets[provider]
}

// Providers lists all registered provider names
func (r *Registry) Providers() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}

// =====================================================
// SYNTHESIZED IDEMPOTENCY KEY
// =====================================================

// SynthesizeIdempotencyKey derives a key for providers that supply
// no event id: sha256(rawBody || provider || receivedAt)
func SynthesizeIdempotencyKey(rawBody []byte, provider string, receivedAt time.Time) string {
	h := sha256.New()
	h.Write(rawBody)
	h.Write([]byte(provider))
	h.Write([]byte(receivedAt.UTC().Format(time.RFC3339)))
	return hex.EncodeToString(h.Sum(nil))
}
