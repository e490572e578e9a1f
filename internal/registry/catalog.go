package registry

import (
	"sync"

	"patchscope/pkg/types"
)

// Catalog is the current model listing, refreshed by the Watcher.
type Catalog struct {
	mu     sync.RWMutex
	models []types.Model
	loaded string
	// served describes the loaded model for when it is not in the listing.
	served *types.Model
}

// NewCatalog marks the model at loadedPath as the one being served. The file
// is inspected once here; an unreadable file is simply left out of listings.
func NewCatalog(loadedPath string) *Catalog {
	c := &Catalog{loaded: loadedPath}
	if loadedPath == "" {
		return c
	}
	if m, err := Inspect(loadedPath); err == nil {
		m.Loaded = true
		c.served = &m
	}
	return c
}

// Set replaces the listing.
func (c *Catalog) Set(models []types.Model) {
	c.mu.Lock()
	c.models = append([]types.Model(nil), models...)
	c.mu.Unlock()
}

// List returns a copy with Loaded set on the served model. The served model
// is included even when it lives outside the scanned directory.
func (c *Catalog) List() []types.Model {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]types.Model, 0, len(c.models)+1)
	found := false
	for _, m := range c.models {
		m.Loaded = c.loaded != "" && m.Path == c.loaded
		found = found || m.Loaded
		out = append(out, m)
	}
	if !found && c.served != nil {
		out = append(out, *c.served)
	}
	return out
}
