// Package saver implements the §4.7 Saver: a process-wide coalescing
// dispatcher that turns "this Source is dirty" into a background
// sync() call on the event loop, deduplicated by the Source's queued
// bit. It is modeled on the teacher's internal/storage.Paired, whose
// background propagate goroutine plays the same role for pending
// writes to a secondary store.
package saver

import (
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/qconfig/qconfig/internal/loop"
	"github.com/qconfig/qconfig/source"
)

// Saver posts a save event for a Source at most once while one is
// already in flight, and exposes a Drain hook for process shutdown.
type Saver struct {
	loop *loop.Loop
}

// New returns a Saver that dispatches through l. Save events run at
// below-normal priority so they never preempt foreground work already
// queued on l.
func New(l *loop.Loop) *Saver {
	return &Saver{loop: l}
}

// Request queues a save for s if one isn't already pending. It is the
// entry point Cursor.sync() calls after a mutation; posting is a no-op
// if s is not dirty or already queued, which is what makes two
// back-to-back setValue calls on the same Source coalesce into a
// single save event (concurrency guarantee (b)).
func (s *Saver) Request(src *source.Source) {
	if !src.IsDirty() {
		return
	}
	if !src.MarkQueued() {
		return
	}
	correlation := uuid.New().String()
	s.loop.PostLow(func() {
		s.dispatch(src, correlation)
	})
}

func (s *Saver) dispatch(src *source.Source, correlation string) {
	defer src.ClearQueued()
	if !src.IsDirty() {
		// Already flushed synchronously (e.g. Source.Close ran first);
		// the queued event becomes a no-op per §5's cancellation model.
		return
	}
	if err := src.Sync(); err != nil {
		log.WithFields(log.Fields{
			"file":        src.FileName(),
			"correlation": correlation,
			"cause":       err.Error(),
		}).Warning("qconfig: background save failed, will retry on next mutation")
		return
	}
	log.WithFields(log.Fields{
		"file":        src.FileName(),
		"correlation": correlation,
	}).Debug("qconfig: source saved")
}

// Shutdown forces dispatch of every event still pending on the loop,
// the cleanup hook §5 requires so no dirty Source is lost at process
// exit.
func (s *Saver) Shutdown() {
	s.loop.Drain()
}
