// Package qconfig is the facade named in the root of the component map:
// it wires a backend Registry, a Resolver, an optional Crypto, and a
// SourceCache, event loop and Saver of its own into one ready-to-use
// Store, the
// way cmd/muscle/muscle.go wires its filesystem, storage, and netutil
// subsystems into one runnable program. Callers who want finer control
// over any one collaborator use the source/cursor/backend packages
// directly instead.
package qconfig

import (
	"time"

	"github.com/qconfig/qconfig/backend"
	"github.com/qconfig/qconfig/cursor"
	"github.com/qconfig/qconfig/internal/loop"
	"github.com/qconfig/qconfig/pathresolve"
	"github.com/qconfig/qconfig/saver"
	"github.com/qconfig/qconfig/source"
)

// Store is the batteries-included entry point: Open returns Cursors
// pre-wired to a shared cache, registry, resolver, and saver.
type Store struct {
	registry *backend.Registry
	resolver pathresolve.Resolver
	cache    *source.Cache
	loop     *loop.Loop
	saver    *saver.Saver
	crypto   cursor.Crypto
}

// Option configures a Store built by New.
type Option func(*Store)

// WithResolver overrides the default path Resolver (pathresolve.Default).
func WithResolver(r pathresolve.Resolver) Option {
	return func(s *Store) { s.resolver = r }
}

// WithRegistry overrides the default backend Registry (backend.Standard).
func WithRegistry(r *backend.Registry) Option {
	return func(s *Store) { s.registry = r }
}

// WithCrypto equips the Store's Cursors with a Crypto collaborator, so
// the Crypted flag has somewhere to route through.
func WithCrypto(c cursor.Crypto) Option {
	return func(s *Store) { s.crypto = c }
}

// New builds a Store with its own SourceCache, event loop, and Saver.
// Defaults to pathresolve.Default and backend.Standard.
func New(opts ...Option) *Store {
	l := loop.New()
	s := &Store{
		registry: backend.Standard,
		resolver: pathresolve.Default{},
		cache:    source.NewCache(),
		loop:     l,
		saver:    saver.New(l),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open builds a Cursor layering the given configuration names, user
// directory first then system directory, creating missing
// user-directory files when create is true.
func (s *Store) Open(create bool, names ...string) (*cursor.Cursor, error) {
	return cursor.Open(cursor.OpenOptions{
		Paths:    names,
		Create:   create,
		Resolver: s.resolver,
		Registry: s.registry,
		Cache:    s.cache,
		Saver:    s.saver,
		Crypto:   s.crypto,
	})
}

// Evict runs one SourceCache idle sweep immediately, rather than
// waiting for a caller-driven scheduler to do so periodically.
func (s *Store) Evict() []string {
	return s.cache.Evict(time.Now())
}

// Shutdown drains any pending save events and flushes every cached
// Source, the cleanup hook §5 requires at process exit.
func (s *Store) Shutdown() {
	s.saver.Shutdown()
	s.cache.CloseAll()
	s.loop.Close()
}
