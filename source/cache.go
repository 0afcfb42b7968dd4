package source

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/qconfig/qconfig/config"
)

// cacheEntry pairs a live Source with the moment it was last handed
// out, the age the idle sweep measures against.
type cacheEntry struct {
	source     *Source
	lastAccess time.Time
}

// Cache is the process-wide SourceCache of spec.md §4.3: open Sources
// keyed by canonical path, so repeated Open calls for the same file
// across Cursors share one in-memory root instead of re-reading and
// re-parsing it. Eviction is grounded on internal/tree.Node.Trim in
// the teacher repository: an entry is left alone if it is referenced
// or was accessed too recently, flushed first if dirty, and only then
// dropped.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]*cacheEntry
	idleWindow time.Duration
	group      singleflight.Group
}

// NewCache returns an empty Cache using config.CacheIdleWindow as the
// idle-eviction threshold.
func NewCache() *Cache {
	return &Cache{
		entries:    map[string]*cacheEntry{},
		idleWindow: config.CacheIdleWindow,
	}
}

func (c *Cache) lookup(canonical string) (*Source, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[canonical]
	if !ok {
		return nil, false
	}
	e.lastAccess = time.Now()
	return e.source, true
}

func (c *Cache) put(canonical string, s *Source) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[canonical] = &cacheEntry{source: s, lastAccess: time.Now()}
}

// OpenShared wraps Open with singleflight so concurrent callers
// requesting the same canonical path during a cache miss collapse
// into a single Load, matching the single in-memory root guarantee
// the rest of the package assumes. The dedup key is the raw,
// pre-resolution opts.Path plus the systemDir flag; a genuine cache
// hit inside Open still short-circuits before any I/O.
func (c *Cache) OpenShared(opts OpenOptions) (*Source, error) {
	opts.Cache = c
	key := opts.Path
	if opts.SystemDir {
		key = "system:" + key
	} else {
		key = "user:" + key
	}
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		return Open(opts)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Source), nil
}

// Evict sweeps every cached Source and drops the ones that are
// unreferenced and have sat idle past the Cache's idle window,
// flushing any dirty Source before dropping it. It returns the
// canonical paths evicted, mirroring Node.Trim's age+refcount gate:
// a Source is skipped if RefCount() != 0 or it was accessed too
// recently.
func (c *Cache) Evict(now time.Time) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var evicted []string
	for path, e := range c.entries {
		if e.source.RefCount() != 0 {
			continue
		}
		if now.Sub(e.lastAccess) < c.idleWindow {
			continue
		}
		e.source.Close()
		delete(c.entries, path)
		evicted = append(evicted, path)
	}
	return evicted
}

// Len reports the number of Sources currently cached, for tests and
// diagnostics.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// CloseAll flushes and drops every cached Source regardless of
// refcount or age, the shutdown-time counterpart to Evict's idle
// sweep.
func (c *Cache) CloseAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for path, e := range c.entries {
		e.source.Close()
		delete(c.entries, path)
	}
	log.Debug("qconfig: source cache closed")
}
