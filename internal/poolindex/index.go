// Package poolindex maintains the derived, in-memory mapping between pools
// and the tracked position identifiers that must be re-priced when the pool
// swaps. It is rebuilt by replay on restart and is never persisted.
package poolindex

import (
	"sort"

	"safeScope/internal/model"
)

// Index is a bidirectional pool <-> position-id mapping. An identifier is a
// member of at most one pool's set at a time; both directions are kept
// consistent by construction. The single-threaded event loop is the only
// mutator, so there is no lock.
type Index struct {
	byPool map[string]map[string]struct{}
	byID   map[string]string
}

func New() *Index {
	return &Index{
		byPool: make(map[string]map[string]struct{}),
		byID:   make(map[string]string),
	}
}

// Add tracks id under pool. Adding an id already present under the same pool
// is a no-op; an id tracked under a different pool is moved.
func (x *Index) Add(pool, id string) {
	pool = model.CanonicalAddress(pool)

	if current, ok := x.byID[id]; ok {
		if current == pool {
			return
		}
		x.detach(current, id)
	}

	ids := x.byPool[pool]
	if ids == nil {
		ids = make(map[string]struct{})
		x.byPool[pool] = ids
	}
	ids[id] = struct{}{}
	x.byID[id] = pool
}

// Remove stops tracking id under pool and clears the reverse mapping.
func (x *Index) Remove(pool, id string) {
	pool = model.CanonicalAddress(pool)
	if current, ok := x.byID[id]; !ok || current != pool {
		return
	}
	x.detach(pool, id)
	delete(x.byID, id)
}

func (x *Index) detach(pool, id string) {
	if ids, ok := x.byPool[pool]; ok {
		delete(ids, id)
		if len(ids) == 0 {
			delete(x.byPool, pool)
		}
	}
}

// PositionsFor returns the tracked ids under pool, sorted for deterministic
// fan-out order.
func (x *Index) PositionsFor(pool string) []string {
	ids := x.byPool[model.CanonicalAddress(pool)]
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// PoolFor returns the pool an id is tracked under.
func (x *Index) PoolFor(id string) (string, bool) {
	pool, ok := x.byID[id]
	return pool, ok
}

// IsTracked reports whether id is tracked under any pool.
func (x *Index) IsTracked(id string) bool {
	_, ok := x.byID[id]
	return ok
}

// Pools returns every pool address with at least one tracked id, sorted.
func (x *Index) Pools() []string {
	out := make([]string, 0, len(x.byPool))
	for pool := range x.byPool {
		out = append(out, pool)
	}
	sort.Strings(out)
	return out
}
