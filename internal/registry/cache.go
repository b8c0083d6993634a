// internal/registry/cache.go
package registry

import (
	"sync"

	"github.com/kmerland/hubdispo-sub001/internal/group"
)

// groupCache maps group IDs to their canonical in-process instance. Every
// read path of the Postgres backing hands out instances through intern, so
// all mutations inside one process funnel through the same group mutex
// instead of racing on independent rehydrated copies.
//
// Versions track the last database row version this process has seen. A
// rehydrated copy carrying a newer version means another process wrote the
// row; the newer copy becomes canonical and holders of the old pointer fail
// their next save with ErrStaleGroup.
type groupCache struct {
	mu       sync.Mutex
	groups   map[string]*group.Group
	versions map[string]int64
}

func newGroupCache() *groupCache {
	return &groupCache{
		groups:   make(map[string]*group.Group),
		versions: make(map[string]int64),
	}
}

// intern resolves a freshly rehydrated copy to the canonical instance. The
// cached instance wins unless the loaded copy carries a newer row version.
func (c *groupCache) intern(loaded *group.Group, version int64) *group.Group {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cached, ok := c.groups[loaded.ID()]; ok && c.versions[loaded.ID()] >= version {
		return cached
	}
	c.groups[loaded.ID()] = loaded
	c.versions[loaded.ID()] = version
	return loaded
}

// get returns the canonical instance without touching the database.
func (c *groupCache) get(id string) (*group.Group, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.groups[id]
	return g, ok
}

// version returns the last row version seen for the group; zero when the
// group has never been loaded or saved by this process.
func (c *groupCache) version(id string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.versions[id]
}

// put records a successful save: the instance is canonical at the new
// version.
func (c *groupCache) put(g *group.Group, version int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.groups[g.ID()] = g
	c.versions[g.ID()] = version
}

// drop evicts the group, forcing the next read to rehydrate from the
// database. Used for terminal phases and after a stale save.
func (c *groupCache) drop(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.groups, id)
	delete(c.versions, id)
}
