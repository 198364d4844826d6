package catalog

import (
	"context"
	"sync"

	"tunlink/internal/core/types"
	pkgerrors "tunlink/pkg/errors"
)

// ServerLister is the slice of the session API the catalog needs.
type ServerLister interface {
	ListServers(ctx context.Context) ([]types.ServerDescriptor, error)
}

// Cache holds the list of available connection endpoints and the current
// selection. It owns both; the controller only references them.
type Cache struct {
	mu         sync.RWMutex
	lister     ServerLister
	servers    []types.ServerDescriptor
	selectedID int64 // 0 when nothing is selected
}

// New creates a new server catalog cache
func New(lister ServerLister) *Cache {
	return &Cache{lister: lister}
}

// Load fetches the server list. Idempotent and safe to call repeatedly:
// an existing selection survives the refresh as long as the server is
// still in the response. When no selection exists, the first entry in API
// response order becomes the default.
func (c *Cache) Load(ctx context.Context) error {
	servers, err := c.lister.ListServers(ctx)
	if err != nil {
		return err
	}
	if len(servers) == 0 {
		return pkgerrors.ErrServerUnavailable
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.servers = servers
	if c.selectedID == 0 || c.find(c.selectedID) == nil {
		c.selectedID = servers[0].ID
	}
	return nil
}

// Loaded reports whether the catalog holds any servers.
func (c *Cache) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.servers) > 0
}

// Select sets the current selection. It does not touch connection state.
func (c *Cache) Select(serverID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.find(serverID) == nil {
		return &pkgerrors.ServerError{ServerID: serverID, Err: pkgerrors.ErrServerNotFound}
	}
	c.selectedID = serverID
	return nil
}

// Current returns the selected server.
func (c *Cache) Current() (*types.ServerDescriptor, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.servers) == 0 {
		return nil, pkgerrors.ErrServerUnavailable
	}
	if server := c.find(c.selectedID); server != nil {
		copied := *server
		return &copied, nil
	}
	return nil, pkgerrors.ErrServerUnavailable
}

// Servers returns a copy of the cached server list.
func (c *Cache) Servers() []types.ServerDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]types.ServerDescriptor, len(c.servers))
	copy(out, c.servers)
	return out
}

// Resolve returns the descriptor for serverID, loading the catalog first
// when it is empty. serverID 0 resolves to the current selection.
func (c *Cache) Resolve(ctx context.Context, serverID int64) (*types.ServerDescriptor, error) {
	if !c.Loaded() {
		if err := c.Load(ctx); err != nil {
			return nil, err
		}
	}

	if serverID == 0 {
		return c.Current()
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if server := c.find(serverID); server != nil {
		copied := *server
		return &copied, nil
	}
	return nil, &pkgerrors.ServerError{ServerID: serverID, Err: pkgerrors.ErrServerNotFound}
}

// setLatency records a probed latency for a server, if still cached.
func (c *Cache) setLatency(serverID int64, latencyMs float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.servers {
		if c.servers[i].ID == serverID {
			c.servers[i].LatencyMs = latencyMs
			return
		}
	}
}

// find returns the cached entry for id. Caller holds c.mu.
func (c *Cache) find(id int64) *types.ServerDescriptor {
	for i := range c.servers {
		if c.servers[i].ID == id {
			return &c.servers[i]
		}
	}
	return nil
}
