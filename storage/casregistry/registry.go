// Package casregistry is the build-time plugin table for document store
// backends. Backends register themselves in init() and a binary enables them
// by importing the backend package, usually as a blank import.
package casregistry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"signet.dev/verify/storage"
)

// Backend opens one storage.CAS implementation from a string config map.
type Backend struct {
	Name        string
	Description string
	Usage       Usage

	// Keys documents the config keys Open understands.
	Keys []string

	// Open constructs the CAS. It returns an optional close function.
	Open func(ctx context.Context, cfg map[string]string) (storage.CAS, func() error, error)
}

var (
	mu       sync.RWMutex
	backends = map[string]Backend{}
)

// Register registers a backend.
func Register(b Backend) error {
	if b.Name == "" {
		return fmt.Errorf("casregistry: backend name is required")
	}
	if b.Open == nil {
		return fmt.Errorf("casregistry: backend %q missing Open", b.Name)
	}
	if b.Usage == 0 {
		return fmt.Errorf("casregistry: backend %q missing Usage", b.Name)
	}

	mu.Lock()
	defer mu.Unlock()
	if _, exists := backends[b.Name]; exists {
		return fmt.Errorf("casregistry: backend %q already registered", b.Name)
	}
	backends[b.Name] = b
	return nil
}

// MustRegister is like Register but panics on error.
func MustRegister(b Backend) {
	if err := Register(b); err != nil {
		panic(err)
	}
}

// List returns backends matching usage, sorted by name.
func List(usage Usage) []Backend {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Backend, 0, len(backends))
	for _, b := range backends {
		if b.Usage.allows(usage) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns backend names matching usage, sorted.
func Names(usage Usage) []string {
	bs := List(usage)
	n := make([]string, 0, len(bs))
	for _, b := range bs {
		n = append(n, b.Name)
	}
	return n
}

// OpenWithConfig opens the named backend if it exists and matches usage.
// Unknown config keys are rejected so typos do not silently fall back to
// defaults.
func OpenWithConfig(ctx context.Context, name string, usage Usage, cfg map[string]string) (storage.CAS, func() error, error) {
	mu.RLock()
	b, ok := backends[name]
	mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("casregistry: unknown backend %q (have %v)", name, Names(usage))
	}
	if !b.Usage.allows(usage) {
		return nil, nil, fmt.Errorf("casregistry: backend %q not supported in this binary", name)
	}
	if len(b.Keys) > 0 {
		allowed := make(map[string]struct{}, len(b.Keys))
		for _, k := range b.Keys {
			allowed[k] = struct{}{}
		}
		for k := range cfg {
			if _, ok := allowed[k]; !ok {
				return nil, nil, fmt.Errorf("casregistry: backend %q: unknown config key %q", name, k)
			}
		}
	}
	return b.Open(ctx, cfg)
}
