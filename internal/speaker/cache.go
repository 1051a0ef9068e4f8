// Package speaker assigns display names and colors to provider speaker ids for
// the lifetime of one recording.
package speaker

import (
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Identity is the display identity of one speaker. It never changes once assigned.
type Identity struct {
	ID      string
	Name    string
	Color   lipgloss.Color
	Ordinal int
}

// Cache memoizes identities per session. Safe for concurrent use.
type Cache struct {
	mu    sync.RWMutex
	byID  map[string]Identity
	order []string
	names map[string]bool
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{
		byID:  make(map[string]Identity),
		names: make(map[string]bool),
	}
}

// IdentityFor returns the identity for id, assigning the next ordinal on first use.
// Names avoid collisions with identities already assigned until all
// descriptor/noun pairs are taken; colors repeat after len(Palette) speakers.
func (c *Cache) IdentityFor(id string) Identity {
	c.mu.RLock()
	ident, ok := c.byID[id]
	c.mu.RUnlock()
	if ok {
		return ident
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if ident, ok := c.byID[id]; ok {
		return ident
	}

	ordinal := len(c.order)
	ident = Identity{
		ID:      id,
		Name:    c.pickName(id, ordinal),
		Color:   Palette[ordinal%len(Palette)],
		Ordinal: ordinal,
	}
	c.byID[id] = ident
	c.order = append(c.order, id)
	c.names[ident.Name] = true
	return ident
}

// pickName walks forward from the hashed candidate to the first unused name.
// Caller holds the write lock.
func (c *Cache) pickName(id string, ordinal int) string {
	adj, noun := candidateIndexes(id, ordinal)
	total := len(descriptors) * len(nouns)
	if len(c.names) >= total {
		return nameAt(adj, noun)
	}
	start := adj*len(nouns) + noun
	for step := 0; step < total; step++ {
		slot := (start + step) % total
		name := nameAt(slot/len(nouns), slot%len(nouns))
		if !c.names[name] {
			return name
		}
	}
	return nameAt(adj, noun)
}

// Lookup returns the identity for id without assigning one.
func (c *Cache) Lookup(id string) (Identity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ident, ok := c.byID[id]
	return ident, ok
}

// Reset forgets every identity so the next recording starts from the first
// palette entry.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID = make(map[string]Identity)
	c.order = nil
	c.names = make(map[string]bool)
}
