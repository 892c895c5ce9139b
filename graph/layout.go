package graph

import (
	"sync"

	"github.com/golang/groupcache/lru"
)

// Position is a 2D coordinate assigned by a layout engine.
type Position struct {
	X, Y float64
}

// Layouter assigns positions to the nodes of a graph, keyed by node id.
type Layouter interface {
	Layout(g *Graph) map[string]Position
}

// DefaultCacheSize bounds the number of remembered aliases.
const DefaultCacheSize = 512

// PositionCache remembers where the user placed selected tables, keyed by
// alias. It is shared by every session, so access is serialized; the last
// write for an alias wins.
type PositionCache struct {
	mu    sync.Mutex
	cache *lru.Cache
}

// NewPositionCache returns a cache holding at most size aliases.
func NewPositionCache(size int) *PositionCache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	return &PositionCache{cache: lru.New(size)}
}

// Remember records the position of alias.
func (c *PositionCache) Remember(alias string, p Position) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Add(lru.Key(alias), p)
}

// Get returns the remembered position of alias.
func (c *PositionCache) Get(alias string) (Position, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.cache.Get(lru.Key(alias))
	if !ok {
		return Position{}, false
	}
	return v.(Position), true
}

// Forget drops the remembered position of alias.
func (c *PositionCache) Forget(alias string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Remove(lru.Key(alias))
}

// Len returns the number of remembered aliases.
func (c *PositionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Len()
}

// LayeredLayout places selected tables left to right by order and stacks
// suggestions in a column beside the context table: parents to its left,
// children to its right. Remembered positions override selected tables.
type LayeredLayout struct {
	Cache *PositionCache
	XStep float64
	YStep float64
}

// NewLayeredLayout returns a layout with default spacing.
func NewLayeredLayout(cache *PositionCache) *LayeredLayout {
	return &LayeredLayout{Cache: cache, XStep: 240, YStep: 120}
}

// Layout implements Layouter.
func (l *LayeredLayout) Layout(g *Graph) map[string]Position {
	out := make(map[string]Position)
	if g == nil {
		return out
	}
	for _, n := range g.SelectedNodes() {
		if l.Cache != nil {
			if p, ok := l.Cache.Get(n.ID); ok {
				out[n.ID] = p
				continue
			}
		}
		out[n.ID] = Position{X: float64(n.Order-1) * l.XStep}
	}

	ctx := out[g.Context]
	var parents, children int
	for _, n := range g.SuggestedNodes() {
		if n.Hint != nil && n.Hint.Parent {
			out[n.ID] = Position{X: ctx.X - l.XStep, Y: ctx.Y + float64(parents+1)*l.YStep}
			parents++
			continue
		}
		out[n.ID] = Position{X: ctx.X + l.XStep, Y: ctx.Y + float64(children+1)*l.YStep}
		children++
	}
	return out
}
