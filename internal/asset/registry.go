package asset

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/singleflight"
)

// Lookup resolves metadata for a token the registry does not know yet.
type Lookup func(ctx context.Context, address common.Address) (*Asset, error)

// Registry is a thread-safe registry of known tokens. Concurrent resolves of
// the same unknown token share one lookup.
type Registry struct {
	mu      sync.RWMutex
	tokens  map[common.Address]*Asset
	lookup  Lookup
	lookups singleflight.Group
}

// NewRegistry creates an empty registry. lookup may be nil.
func NewRegistry(lookup Lookup) *Registry {
	return &Registry{
		tokens: make(map[common.Address]*Asset),
		lookup: lookup,
	}
}

// Register adds or replaces a token.
func (r *Registry) Register(a *Asset) {
	if a == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[a.Address()] = a
}

// Get returns a known token.
func (r *Registry) Get(address common.Address) (*Asset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.tokens[address]
	return a, ok
}

// Resolve returns a known token, or looks it up and registers the result.
func (r *Registry) Resolve(ctx context.Context, address common.Address) (*Asset, error) {
	if a, ok := r.Get(address); ok {
		return a, nil
	}
	if r.lookup == nil {
		return nil, ErrUnknownAsset
	}

	v, err, _ := r.lookups.Do(address.Hex(), func() (any, error) {
		if a, ok := r.Get(address); ok {
			return a, nil
		}
		a, err := r.lookup(ctx, address)
		if err != nil {
			return nil, err
		}
		r.Register(a)
		return a, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Asset), nil
}

// Count returns the number of registered tokens.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tokens)
}
