package graph

import (
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/starford/noteweave/internal/models"
)

// edgeCache holds the inferred edges for one corpus fingerprint.
// Concurrent misses for the same fingerprint share one computation.
type edgeCache struct {
	mu          sync.RWMutex
	fingerprint string
	edges       []models.InferredEdge
	valid       bool

	group singleflight.Group
}

func newEdgeCache() *edgeCache {
	return &edgeCache{}
}

func (c *edgeCache) get(fp string, compute func() ([]models.InferredEdge, error)) ([]models.InferredEdge, error) {
	c.mu.RLock()
	if c.valid && c.fingerprint == fp {
		edges := c.edges
		c.mu.RUnlock()
		return edges, nil
	}
	c.mu.RUnlock()

	v, err, _ := c.group.Do(fp, func() (any, error) {
		edges, err := compute()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.fingerprint, c.edges, c.valid = fp, edges, true
		c.mu.Unlock()
		return edges, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.InferredEdge), nil
}

func (c *edgeCache) invalidate() {
	c.mu.Lock()
	c.valid = false
	c.edges = nil
	c.mu.Unlock()
}
