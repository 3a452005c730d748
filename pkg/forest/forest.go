// Package forest implements the Forest aggregate: the four parallel
// collections (rules, resources, tree roots and failover domains)
// built fresh on every reconfigure and installed atomically under a
// single reader/writer lock.
package forest

import (
	"fmt"
	"sync"

	"github.com/ocfcluster/rgmd/pkg/config"
	"github.com/ocfcluster/rgmd/pkg/domains"
	"github.com/ocfcluster/rgmd/pkg/resources"
	"github.com/ocfcluster/rgmd/pkg/rgerr"
	"github.com/ocfcluster/rgmd/pkg/ruleset"
	"github.com/ocfcluster/rgmd/pkg/types"
)

// Forest is a snapshot of the cluster's resource configuration. Once
// built, only its resources' NEEDSTART/NEEDSTOP flags change in place
// (set by reconfigure's delta, cleared when the flagged operation
// completes); reconfigure builds a new one and the Holder swaps it in.
type Forest struct {
	Version   int64
	Rules     map[string]*types.Rule
	Resources map[string]*types.Resource
	Roots     []*types.Node
	Domains   map[string]*types.Domain
}

// Root returns the tree root for group name, if any.
func (f *Forest) Root(name string) (*types.Node, bool) {
	for _, r := range f.Roots {
		if r.Resource.Name() == name {
			return r, true
		}
	}
	return nil, false
}

// Domain returns the named failover domain, if any.
func (f *Forest) Domain(name string) (*types.Domain, bool) {
	d, ok := f.Domains[name]
	return d, ok
}

// Build loads rules, resources, trees and domains from store and
// assembles a validated Forest. A configuration error from any loader
// is returned unwrapped so the caller can reject the load and keep
// its current forest.
func Build(store config.Store) (*Forest, error) {
	version, err := store.GetVersion()
	if err != nil {
		return nil, fmt.Errorf("read config version: %w", err)
	}

	rules, err := ruleset.Load(store)
	if err != nil {
		return nil, err
	}

	res, err := resources.Load(store, rules)
	if err != nil {
		return nil, err
	}

	doms, err := domains.Load(store)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(res.Roots))
	for _, root := range res.Roots {
		name := root.Resource.Name()
		if seen[name] {
			return nil, fmt.Errorf("duplicate root resource name %q: %w", name, rgerr.ErrConfig)
		}
		seen[name] = true
	}

	return &Forest{
		Version:   version,
		Rules:     rules,
		Resources: res.Resources,
		Roots:     res.Roots,
		Domains:   doms,
	}, nil
}

// Holder is the process-wide handle to the current Forest, threaded
// explicitly to its users rather than held as a package-level
// variable. All reads take the reader
// lock; Swap takes the writer lock only to repoint the pointer, so
// readers never block on the (comparatively expensive) rebuild that
// produced the new Forest.
type Holder struct {
	mu      sync.RWMutex
	current *Forest
}

// NewHolder wraps an already-built Forest.
func NewHolder(f *Forest) *Holder {
	return &Holder{current: f}
}

// Current returns the active Forest under the reader lock. Callers
// must not retain it across a blocking operation that could also wait
// on a per-group lock; the forest read lock is always taken before a
// per-group lock, never the reverse.
func (h *Holder) Current() *Forest {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Swap installs f as the current Forest, returning the previous one.
// Callers hold no per-group locks while calling Swap.
func (h *Holder) Swap(f *Forest) *Forest {
	h.mu.Lock()
	defer h.mu.Unlock()
	prev := h.current
	h.current = f
	return prev
}
