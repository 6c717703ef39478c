package sync

import "sync"

// resultCache is the per-namespace decoded query-result cache that backs
// the Query Engine's synchronous fast-path (query.RemoteCache). It is
// populated by querydecode.go after every inbound query response and
// cleared per-namespace whenever a local outbound transaction touches
// that namespace, since the cached shape would otherwise go stale before
// the next server push.
type resultCache struct {
	mu   sync.RWMutex
	data map[string][]map[string]any
}

func newResultCache() *resultCache {
	return &resultCache{data: make(map[string][]map[string]any)}
}

// CachedCollection implements query.RemoteCache.
func (c *resultCache) CachedCollection(namespace string) ([]map[string]any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rows, ok := c.data[namespace]
	return rows, ok
}

func (c *resultCache) store(namespace string, rows []map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[namespace] = rows
}

func (c *resultCache) invalidate(namespace string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, namespace)
}

// CachedCollection implements query.RemoteCache on Engine by delegating
// to its result cache.
func (e *Engine) CachedCollection(namespace string) ([]map[string]any, bool) {
	return e.cache.CachedCollection(namespace)
}
