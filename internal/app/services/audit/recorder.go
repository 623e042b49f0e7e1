// Package audit records security-relevant actions. Recent events are held in
// a ring buffer for fast retrieval and forwarded best-effort to a sink for
// durable storage.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/domain/audit"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/storage"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/pkg/logger"
)

// Sink receives every recorded event for durable storage.
type Sink interface {
	Write(ctx context.Context, e audit.Event) error
}

// StoreSink persists events through an AuditStore.
type StoreSink struct {
	store storage.AuditStore
}

func NewStoreSink(store storage.AuditStore) *StoreSink {
	return &StoreSink{store: store}
}

func (s *StoreSink) Write(ctx context.Context, e audit.Event) error {
	_, err := s.store.CreateAuditEvent(ctx, e)
	return err
}

// Recorder keeps the most recent events in memory and forwards them to the
// configured sink.
type Recorder struct {
	mu      sync.Mutex
	entries []audit.Event
	max     int
	sink    Sink
	log     *logger.Logger
}

func NewRecorder(max int, sink Sink, log *logger.Logger) *Recorder {
	if max <= 0 {
		max = 200
	}
	if log == nil {
		log = logger.NewDefault("audit")
	}
	return &Recorder{max: max, sink: sink, log: log}
}

// Record stores an event. Sink failures are logged but never fail the caller.
func (r *Recorder) Record(ctx context.Context, e audit.Event) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	r.mu.Lock()
	r.entries = append(r.entries, e)
	if len(r.entries) > r.max {
		r.entries = r.entries[len(r.entries)-r.max:]
	}
	r.mu.Unlock()

	if r.sink != nil {
		if err := r.sink.Write(ctx, e); err != nil {
			r.log.WithError(err).Warn("audit sink write failed")
		}
	}
}

// Recent returns up to limit of the most recent events, newest last.
func (r *Recorder) Recent(limit int) []audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limit <= 0 || limit > r.max {
		limit = r.max
	}
	entries := r.entries
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	out := make([]audit.Event, len(entries))
	copy(out, entries)
	return out
}
