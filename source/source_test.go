package source

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qconfig/qconfig/backend"
	"github.com/qconfig/qconfig/internal/value"
	"github.com/qconfig/qconfig/node"
)

type fixedResolver struct{ root string }

func (r fixedResolver) UserPath(name string) string   { return filepath.Join(r.root, "user", name) }
func (r fixedResolver) SystemPath(name string) string { return filepath.Join(r.root, "system", name) }

func testRegistry() *backend.Registry {
	r := backend.NewRegistry()
	r.Register(backend.JSON{})
	r.Register(backend.YAML{})
	return r
}

func TestOpenCreatesMissingFile(t *testing.T) {
	dir := t.TempDir()
	resolver := fixedResolver{root: dir}
	cache := NewCache()

	s, err := Open(OpenOptions{
		Path:     "accounts.json",
		Create:   true,
		Resolver: resolver,
		Registry: testRegistry(),
		Cache:    cache,
	})
	require.NoError(t, err)
	assert.False(t, s.IsReadOnly())
	assert.Equal(t, value.MapKind, s.Data().Tag())
}

func TestOpenWithoutCreateOnMissingFileFails(t *testing.T) {
	dir := t.TempDir()
	resolver := fixedResolver{root: dir}
	_, err := Open(OpenOptions{
		Path:     "nope.json",
		Resolver: resolver,
		Registry: testRegistry(),
		Cache:    NewCache(),
	})
	require.Error(t, err)
}

func TestOpenPicksBackendByExtension(t *testing.T) {
	dir := t.TempDir()
	full := filepath.Join(dir, "user", "profile.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0700))
	require.NoError(t, os.WriteFile(full, []byte("name: bob\n"), 0600))

	s, err := Open(OpenOptions{
		Path:     "profile.yaml",
		Resolver: fixedResolver{root: dir},
		Registry: testRegistry(),
		Cache:    NewCache(),
	})
	require.NoError(t, err)
	child, ok := s.Data().Child("name")
	require.True(t, ok)
	assert.Equal(t, "bob", child.AsScalar().Str)
}

func TestOpenSystemDirIsReadOnly(t *testing.T) {
	dir := t.TempDir()
	full := filepath.Join(dir, "system", "profile.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0700))
	require.NoError(t, os.WriteFile(full, []byte(`{"a":1}`), 0600))

	s, err := Open(OpenOptions{
		Path:      "profile.json",
		SystemDir: true,
		Resolver:  fixedResolver{root: dir},
		Registry:  testRegistry(),
		Cache:     NewCache(),
	})
	require.NoError(t, err)
	assert.True(t, s.IsReadOnly())
	assert.True(t, s.Data().IsReadOnly())
}

func TestEmptyPathSubstitutesProfile(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(OpenOptions{
		Path:     "",
		Create:   true,
		Resolver: fixedResolver{root: dir},
		Registry: testRegistry(),
		Cache:    NewCache(),
	})
	require.NoError(t, err)
	assert.Contains(t, s.FileName(), "profile")
}

func TestCacheHitReturnsSameSourceWhileValid(t *testing.T) {
	dir := t.TempDir()
	resolver := fixedResolver{root: dir}
	reg := testRegistry()
	cache := NewCache()

	first, err := Open(OpenOptions{Path: "a.json", Create: true, Resolver: resolver, Registry: reg, Cache: cache})
	require.NoError(t, err)

	second, err := Open(OpenOptions{Path: "a.json", Create: true, Resolver: resolver, Registry: reg, Cache: cache})
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestSyncClearsDirtyAndUpdatesLastModified(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(OpenOptions{
		Path:     "a.json",
		Create:   true,
		Resolver: fixedResolver{root: dir},
		Registry: testRegistry(),
		Cache:    NewCache(),
	})
	require.NoError(t, err)

	_, err = s.Data().ReplaceChild("name", node.NewScalar(value.Str("alice"), false))
	require.NoError(t, err)
	s.MakeDirty()

	require.NoError(t, s.Sync())
	assert.False(t, s.IsDirty())
	assert.True(t, s.IsValid(), "lastModified must match the freshly written file")

	raw, err := os.ReadFile(s.FileName())
	require.NoError(t, err)
	assert.Contains(t, string(raw), "alice")
}

func TestIsValidDetectsExternalModification(t *testing.T) {
	dir := t.TempDir()
	resolver := fixedResolver{root: dir}
	reg := testRegistry()
	cache := NewCache()

	s, err := Open(OpenOptions{Path: "a.json", Create: true, Resolver: resolver, Registry: reg, Cache: cache})
	require.NoError(t, err)
	require.NoError(t, s.Sync())
	assert.True(t, s.IsValid())

	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(s.FileName(), future, future))
	assert.False(t, s.IsValid())
}
