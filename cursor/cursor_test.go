package cursor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qconfig/qconfig/aescrypto"
	"github.com/qconfig/qconfig/backend"
	"github.com/qconfig/qconfig/internal/loop"
	"github.com/qconfig/qconfig/internal/value"
	"github.com/qconfig/qconfig/saver"
	"github.com/qconfig/qconfig/source"
)

type fixedResolver struct{ root string }

func (r fixedResolver) UserPath(name string) string   { return filepath.Join(r.root, "user", name) }
func (r fixedResolver) SystemPath(name string) string { return filepath.Join(r.root, "system", name) }

func testRegistry() *backend.Registry {
	r := backend.NewRegistry()
	r.Register(backend.JSON{})
	return r
}

func newTestRig(t *testing.T) (*fixedResolver, *backend.Registry, *source.Cache, *loop.Loop, *saver.Saver) {
	t.Helper()
	dir := t.TempDir()
	resolver := &fixedResolver{root: dir}
	reg := testRegistry()
	cache := source.NewCache()
	l := loop.New()
	t.Cleanup(l.Close)
	sav := saver.New(l)
	return resolver, reg, cache, l, sav
}

// S1 (create+write+read)
func TestScenarioCreateWriteRead(t *testing.T) {
	resolver, reg, cache, l, sav := newTestRig(t)

	c, err := Open(OpenOptions{
		Paths: []string{"t.json"}, Create: true,
		Resolver: resolver, Registry: reg, Cache: cache, Saver: sav,
	})
	require.NoError(t, err)

	c.SetValue("user/name", value.NewScalar(value.Str("alice")), Normal)
	c.Sync()
	l.Drain()
	c.Close()

	c2, err := Open(OpenOptions{
		Paths: []string{"t.json"}, Create: true,
		Resolver: resolver, Registry: reg, Cache: cache, Saver: sav,
	})
	require.NoError(t, err)
	got := c2.Value("user/name", value.NewScalar(value.Str("")), Normal)
	s, _ := got.Scalar()
	assert.Equal(t, "alice", s.Str)
}

// S2 (layering)
func TestScenarioLayering(t *testing.T) {
	dir := t.TempDir()
	resolver := &fixedResolver{root: dir}
	reg := testRegistry()
	cache := source.NewCache()

	userPath := filepath.Join(dir, "user", "t.json")
	sysPath := filepath.Join(dir, "system", "t.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(userPath), 0700))
	require.NoError(t, os.MkdirAll(filepath.Dir(sysPath), 0700))
	require.NoError(t, os.WriteFile(userPath, []byte(`{"k":"user"}`), 0600))
	require.NoError(t, os.WriteFile(sysPath, []byte(`{"k":"sys","only":1}`), 0600))

	c, err := Open(OpenOptions{Paths: []string{"t.json"}, Resolver: resolver, Registry: reg, Cache: cache})
	require.NoError(t, err)

	k := c.Value("k", value.NewScalar(value.Str("")), Normal)
	ks, _ := k.Scalar()
	assert.Equal(t, "user", ks.Str)

	only := c.Value("only", value.NewScalar(value.In(0)), Normal)
	os_, _ := only.Scalar()
	assert.Equal(t, int64(1), os_.Int)
}

// S3 (secret)
func TestScenarioSecret(t *testing.T) {
	resolver, reg, cache, _, _ := newTestRig(t)
	crypto, err := aescrypto.New([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	c, err := Open(OpenOptions{
		Paths: []string{"t.json"}, Create: true,
		Resolver: resolver, Registry: reg, Cache: cache, Crypto: crypto,
	})
	require.NoError(t, err)

	c.SetValue("p", value.NewScalar(value.Str("hi")), Crypted)

	raw := c.Value("p", value.NewScalar(value.Str("")), Normal)
	rs, _ := raw.Scalar()
	assert.Contains(t, rs.Str, aescrypto.Marker)

	decrypted := c.Value("p", value.NewScalar(value.Str("")), Crypted)
	ds, _ := decrypted.Scalar()
	assert.Equal(t, "hi", ds.Str)
}

// S4 (array)
func TestScenarioArray(t *testing.T) {
	resolver, reg, cache, l, sav := newTestRig(t)

	c, err := Open(OpenOptions{
		Paths: []string{"t.json"}, Create: true,
		Resolver: resolver, Registry: reg, Cache: cache, Saver: sav,
	})
	require.NoError(t, err)

	c.BeginArray("xs")
	c.SetArrayIndex(0)
	c.SetValue("v", value.NewScalar(value.In(10)), Normal)
	c.SetArrayIndex(1)
	c.SetValue("v", value.NewScalar(value.In(20)), Normal)
	c.EndArray()
	c.Sync()
	l.Drain()
	c.Close()

	c2, err := Open(OpenOptions{
		Paths: []string{"t.json"}, Create: true,
		Resolver: resolver, Registry: reg, Cache: cache, Saver: sav,
	})
	require.NoError(t, err)
	n := c2.BeginArray("xs")
	assert.Equal(t, 2, n)

	elem := c2.ArrayElement(1)
	v := elem.Value("v", value.NewScalar(value.In(0)), Normal)
	vs, _ := v.Scalar()
	assert.Equal(t, int64(20), vs.Int)
}

// S5 (remove)
func TestScenarioRemove(t *testing.T) {
	resolver, reg, cache, l, sav := newTestRig(t)

	c, err := Open(OpenOptions{
		Paths: []string{"t.json"}, Create: true,
		Resolver: resolver, Registry: reg, Cache: cache, Saver: sav,
	})
	require.NoError(t, err)

	c.BeginArray("xs")
	c.SetArrayIndex(0)
	c.SetValue("v", value.NewScalar(value.In(10)), Normal)
	c.SetArrayIndex(1)
	c.SetValue("v", value.NewScalar(value.In(20)), Normal)
	c.EndArray()
	c.Sync()
	l.Drain()
	c.Close()

	c2, err := Open(OpenOptions{
		Paths: []string{"t.json"}, Create: true,
		Resolver: resolver, Registry: reg, Cache: cache, Saver: sav,
	})
	require.NoError(t, err)
	c2.BeginArray("xs")
	ok := c2.RemoveAt(0)
	require.True(t, ok)
	c2.EndArray()

	c2.BeginArray("xs")
	elem := c2.ArrayElement(0)
	v := elem.Value("v", value.NewScalar(value.In(0)), Normal)
	vs, _ := v.Scalar()
	assert.Equal(t, int64(20), vs.Int)
	assert.Equal(t, 1, c2.ArraySize())
}

// S6 (group cursor independence)
func TestScenarioGroupCursorIndependence(t *testing.T) {
	resolver, reg, cache, _, _ := newTestRig(t)

	c1, err := Open(OpenOptions{Paths: []string{"t.json"}, Create: true, Resolver: resolver, Registry: reg, Cache: cache})
	require.NoError(t, err)

	c2 := c1.Group("a/b")
	c2.SetValue("k", value.NewScalar(value.In(1)), Normal)

	got := c1.Value("a/b/k", value.NewScalar(value.In(0)), Normal)
	gs, _ := got.Scalar()
	assert.Equal(t, int64(1), gs.Int)

	c2.Close() // guarded clone: no sync, no crash
	c1.SetValue("a/b/k", value.NewScalar(value.In(2)), Normal)
	got2 := c1.Value("a/b/k", value.NewScalar(value.In(0)), Normal)
	gs2, _ := got2.Scalar()
	assert.Equal(t, int64(2), gs2.Int)
}

// Property 2: no-op write idempotence.
func TestNoOpWriteDoesNotDirty(t *testing.T) {
	resolver, reg, cache, _, _ := newTestRig(t)
	c, err := Open(OpenOptions{Paths: []string{"t.json"}, Create: true, Resolver: resolver, Registry: reg, Cache: cache})
	require.NoError(t, err)

	c.SetValue("k", value.NewScalar(value.Str("v")), Normal)
	require.True(t, c.sources[0].IsDirty())
	c.sources[0].MakeDirty() // re-confirm baseline then sync conceptually
	require.NoError(t, c.sources[0].Sync())
	require.False(t, c.sources[0].IsDirty())

	current := c.Value("k", value.NewScalar(value.Str("")), Normal)
	c.SetValue("k", current, Normal)
	assert.False(t, c.sources[0].IsDirty())
}

// Property 4: group round trip.
func TestGroupRoundTrip(t *testing.T) {
	resolver, reg, cache, _, _ := newTestRig(t)
	c, err := Open(OpenOptions{Paths: []string{"t.json"}, Create: true, Resolver: resolver, Registry: reg, Cache: cache})
	require.NoError(t, err)

	c.BeginGroup("p1/p2")
	c.SetValue("p3", value.NewScalar(value.Str("v")), Normal)
	c.EndGroup()

	got := c.Value("p1/p2/p3", value.NewScalar(value.Str("")), Normal)
	gs, _ := got.Scalar()
	assert.Equal(t, "v", gs.Str)
}

func TestChildGroupsAndKeysDeduplicateAcrossLayers(t *testing.T) {
	dir := t.TempDir()
	resolver := &fixedResolver{root: dir}
	reg := testRegistry()
	cache := source.NewCache()

	userPath := filepath.Join(dir, "user", "t.json")
	sysPath := filepath.Join(dir, "system", "t.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(userPath), 0700))
	require.NoError(t, os.MkdirAll(filepath.Dir(sysPath), 0700))
	require.NoError(t, os.WriteFile(userPath, []byte(`{"a":1,"g":{"x":1}}`), 0600))
	require.NoError(t, os.WriteFile(sysPath, []byte(`{"a":2,"b":3}`), 0600))

	c, err := Open(OpenOptions{Paths: []string{"t.json"}, Resolver: resolver, Registry: reg, Cache: cache})
	require.NoError(t, err)

	keys := c.ChildKeys()
	assert.ElementsMatch(t, []string{"a", "b"}, keys)
	groups := c.ChildGroups()
	assert.ElementsMatch(t, []string{"g"}, groups)
	assert.True(t, c.HasChildKey("a"))
	assert.True(t, c.HasChildGroup("g"))
	assert.False(t, c.HasChildKey("g"))
}

func TestFromTreeIsInMemoryOnly(t *testing.T) {
	v := value.NewMap().WithField("k", value.NewScalar(value.Str("v")))
	c := FromTree(v, true, nil)
	got := c.Value("k", value.NewScalar(value.Str("")), Normal)
	gs, _ := got.Scalar()
	assert.Equal(t, "v", gs.Str)
	c.Close() // no sources, must not panic
}
