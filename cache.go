package solvent

import (
	"strconv"
	"strings"
	"sync"
)

// solutionCache caches computed Solutions per requested key set and solve
// mode. Entries are valid for the registry generation they were built
// against and dropped once the registry mutates.
type solutionCache struct {
	mu      sync.RWMutex
	entries map[string]*Solution
}

func newSolutionCache() *solutionCache {
	return &solutionCache{entries: make(map[string]*Solution)}
}

// cacheKey builds a canonical key from the requested key ids and mode.
// The requested set is order-insensitive: [A B] and [B A] share a plan.
func cacheKey(keys []*Key, syncOnly bool) string {
	ids := make([]uint64, len(keys))
	for i, k := range keys {
		ids[i] = k.id
	}
	// Insertion sort; requested sets are small.
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j] < ids[j-1]; j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}

	var b strings.Builder
	if syncOnly {
		b.WriteString("s:")
	} else {
		b.WriteString("a:")
	}
	for _, id := range ids {
		b.WriteString(strconv.FormatUint(id, 36))
		b.WriteByte(',')
	}
	return b.String()
}

// get returns a cached Solution still valid for the given registry
// generation.
func (c *solutionCache) get(key string, generation uint64) (*Solution, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	sol, ok := c.entries[key]
	if !ok || sol.generation != generation {
		return nil, false
	}
	return sol, true
}

// put stores a Solution.
func (c *solutionCache) put(key string, sol *Solution) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = sol
}

// clear drops every cached Solution.
func (c *solutionCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*Solution)
}
