// Package registry keeps the reference-counted set of symbols that at least
// one connection is interested in.
package registry

import (
	"sort"
	"sync"

	"github.com/shubham-shewale/market-pulse/pkg/symbols"
)

// Snapshot is a consistent view of the registry taken under one lock.
type Snapshot struct {
	// Symbols are the canonical symbols with a positive count, sorted.
	Symbols []string
	// Aliases lists, per canonical symbol, the aliases currently subscribed.
	Aliases map[string][]string
}

type aliasEntry struct {
	canonical string
	count     int
}

// Registry counts interest per alias and per canonical symbol. Aliases are
// the group names clients used; canonical symbols dedupe the upstream fetch.
type Registry struct {
	resolver symbols.Resolver
	pinned   map[string]bool

	mu        sync.RWMutex
	aliases   map[string]*aliasEntry
	canonical map[string]int
}

// New builds a registry. Pinned symbols are always active regardless of
// subscriptions.
func New(resolver symbols.Resolver, pinned ...string) *Registry {
	r := &Registry{
		resolver:  resolver,
		pinned:    make(map[string]bool, len(pinned)),
		aliases:   make(map[string]*aliasEntry),
		canonical: make(map[string]int),
	}
	for _, p := range pinned {
		r.pinned[symbols.Normalize(p)] = true
	}
	return r
}

// Add records one more subscriber for alias and returns its canonical symbol.
func (r *Registry) Add(alias string) string {
	alias = symbols.Normalize(alias)
	canonical := r.resolver.Resolve(alias)

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.aliases[alias]
	if !ok {
		e = &aliasEntry{canonical: canonical}
		r.aliases[alias] = e
	}
	e.count++
	r.canonical[e.canonical]++

	return e.canonical
}

// Remove drops one subscriber for alias. Removing an alias that is not held
// is a no-op and reports false.
func (r *Registry) Remove(alias string) bool {
	alias = symbols.Normalize(alias)

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.aliases[alias]
	if !ok {
		return false
	}

	e.count--
	if e.count <= 0 {
		delete(r.aliases, alias)
	}

	r.canonical[e.canonical]--
	if r.canonical[e.canonical] <= 0 {
		delete(r.canonical, e.canonical)
	}
	return true
}

// Count is the number of live subscriptions for a canonical symbol.
func (r *Registry) Count(canonical string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.canonical[symbols.Normalize(canonical)]
}

// ActiveCanonicalSymbols is the pinned set plus every symbol with a positive
// count, sorted.
func (r *Registry) ActiveCanonicalSymbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.canonical)+len(r.pinned))
	for s := range r.pinned {
		out = append(out, s)
	}
	for s := range r.canonical {
		if !r.pinned[s] {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// Snapshot returns the subscribed symbols and their aliases. Pinned symbols
// only appear when somebody subscribed to them.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := Snapshot{
		Symbols: make([]string, 0, len(r.canonical)),
		Aliases: make(map[string][]string, len(r.canonical)),
	}
	for s := range r.canonical {
		snap.Symbols = append(snap.Symbols, s)
	}
	for alias, e := range r.aliases {
		snap.Aliases[e.canonical] = append(snap.Aliases[e.canonical], alias)
	}

	sort.Strings(snap.Symbols)
	for _, list := range snap.Aliases {
		sort.Strings(list)
	}
	return snap
}
