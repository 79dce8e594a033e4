// Package directory resolves opaque principal identifiers to display
// names. Identity itself is owned by the surrounding application; the
// lock subsystem only needs a name to render "locked by X" messages.
package directory

import (
	"context"
	"sync"
)

// Resolver defines the interface for principal display-name resolution.
type Resolver interface {
	// DisplayName returns a human-readable name for the given holder
	// id. Implementations fall back to the raw id for unknown
	// principals rather than failing; a missing name must never block
	// a lock operation.
	DisplayName(ctx context.Context, holderID string) string
}

// StaticResolver is an in-memory Resolver backed by a fixed map,
// suitable for tests and single-instance deployments where the host
// application registers names at startup.
type StaticResolver struct {
	mu    sync.RWMutex
	names map[string]string
}

// NewStaticResolver creates a resolver from an initial id-to-name map.
// The map may be nil.
func NewStaticResolver(names map[string]string) *StaticResolver {
	r := &StaticResolver{names: make(map[string]string, len(names))}
	for id, name := range names {
		r.names[id] = name
	}
	return r
}

// Register adds or replaces the display name for a principal.
func (r *StaticResolver) Register(holderID, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names[holderID] = name
}

// DisplayName implements Resolver.
func (r *StaticResolver) DisplayName(ctx context.Context, holderID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if name, ok := r.names[holderID]; ok {
		return name
	}
	return holderID
}
