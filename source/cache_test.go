package source

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvictSkipsReferencedSource(t *testing.T) {
	dir := t.TempDir()
	cache := NewCache()
	cache.idleWindow = time.Millisecond

	s, err := Open(OpenOptions{
		Path:     "a.json",
		Create:   true,
		Resolver: fixedResolver{root: dir},
		Registry: testRegistry(),
		Cache:    cache,
	})
	require.NoError(t, err)
	s.IncRef()

	time.Sleep(2 * time.Millisecond)
	evicted := cache.Evict(time.Now())
	assert.Empty(t, evicted)
	assert.Equal(t, 1, cache.Len())
}

func TestEvictSkipsRecentlyAccessed(t *testing.T) {
	dir := t.TempDir()
	cache := NewCache()
	cache.idleWindow = time.Hour

	_, err := Open(OpenOptions{
		Path:     "a.json",
		Create:   true,
		Resolver: fixedResolver{root: dir},
		Registry: testRegistry(),
		Cache:    cache,
	})
	require.NoError(t, err)

	evicted := cache.Evict(time.Now())
	assert.Empty(t, evicted)
	assert.Equal(t, 1, cache.Len())
}

func TestEvictDropsIdleUnreferencedSource(t *testing.T) {
	dir := t.TempDir()
	cache := NewCache()
	cache.idleWindow = time.Millisecond

	s, err := Open(OpenOptions{
		Path:     "a.json",
		Create:   true,
		Resolver: fixedResolver{root: dir},
		Registry: testRegistry(),
		Cache:    cache,
	})
	require.NoError(t, err)

	evicted := cache.Evict(time.Now().Add(time.Hour))
	require.Len(t, evicted, 1)
	assert.Equal(t, s.FileName(), evicted[0])
	assert.Equal(t, 0, cache.Len())
}

func TestOpenSharedCollapsesConcurrentMisses(t *testing.T) {
	dir := t.TempDir()
	cache := NewCache()

	const n = 16
	results := make(chan *Source, n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			s, err := cache.OpenShared(OpenOptions{
				Path:     "shared.json",
				Create:   true,
				Resolver: fixedResolver{root: dir},
				Registry: testRegistry(),
			})
			results <- s
			errs <- err
		}()
	}

	first := <-results
	require.NoError(t, <-errs)
	for i := 1; i < n; i++ {
		s := <-results
		require.NoError(t, <-errs)
		assert.Same(t, first, s)
	}
	assert.Equal(t, 1, cache.Len())
	assert.Equal(t, filepath.Join(dir, "user", "shared.json"), first.FileName())
}

func TestCloseAllFlushesAndEmptiesCache(t *testing.T) {
	dir := t.TempDir()
	cache := NewCache()

	s, err := Open(OpenOptions{
		Path:     "a.json",
		Create:   true,
		Resolver: fixedResolver{root: dir},
		Registry: testRegistry(),
		Cache:    cache,
	})
	require.NoError(t, err)
	s.MakeDirty()

	cache.CloseAll()
	assert.Equal(t, 0, cache.Len())
	assert.False(t, s.IsDirty())
}
