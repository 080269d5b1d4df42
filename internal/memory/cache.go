package memory

import (
	"slices"
	"sync"
)

// FactCache memoizes the fact set of each session for the life of the
// process. Entries are created once from the fact store and only grow.
type FactCache struct {
	mu       sync.Mutex
	sessions map[string]map[string]struct{}
}

// NewFactCache returns an empty cache.
func NewFactCache() *FactCache {
	return &FactCache{sessions: make(map[string]map[string]struct{})}
}

// Get returns a sorted snapshot of the session's facts and whether the
// session has an entry.
func (c *FactCache) Get(sessionID string) ([]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	set, ok := c.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return sortedKeys(set), true
}

// Seed creates the session's entry from facts unless one already exists, and
// returns the resolved fact set. Duplicates are dropped.
func (c *FactCache) Seed(sessionID string, facts []string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	set, ok := c.sessions[sessionID]
	if !ok {
		set = make(map[string]struct{}, len(facts))
		for _, f := range facts {
			set[f] = struct{}{}
		}
		c.sessions[sessionID] = set
	}
	return sortedKeys(set)
}

// Add records a newly learned fact for a session that already has an entry.
// It reports whether the entry existed.
func (c *FactCache) Add(sessionID, fact string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	set, ok := c.sessions[sessionID]
	if !ok {
		return false
	}
	set[fact] = struct{}{}
	return true
}

// Len returns the number of sessions with an entry.
func (c *FactCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
