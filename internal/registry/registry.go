// Package registry implements the Active-Stream Registry: a process-wide
// concurrent map of in-flight streams used for liveness accounting and
// stale-stream reaping.
package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Session is one in-flight HTTP response.
type Session struct {
	ID               string
	StartedAt        time.Time
	ClientIdentityID string
	FileReferenceID  int64

	bytesSent      int64
	lastActivityAt atomic.Int64 // unix nanos

	cancel      context.CancelFunc
	releaseOnce sync.Once
	onRelease   func() // decrements the identity's wip counter, idempotent
}

func (s *Session) BytesSent() int64      { return atomic.LoadInt64(&s.bytesSent) }
func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivityAt.Load())
}

// Touch records chunk delivery: bumps bytes_sent and last_activity_at.
func (s *Session) Touch(n int64) {
	if n > 0 {
		atomic.AddInt64(&s.bytesSent, n)
	}
	s.lastActivityAt.Store(time.Now().UnixNano())
}

// release runs the teardown exactly once: cancels the fetch loop and
// decrements the owning identity's wip counter.
func (s *Session) release() {
	s.releaseOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		if s.onRelease != nil {
			s.onRelease()
		}
	})
}

// Registry is the process-wide concurrent map of live streams.
type Registry struct {
	streams sync.Map // id -> *Session
	count   atomic.Int64
	log     *zap.Logger

	staleMaxAge time.Duration
}

func New(staleMaxAge time.Duration, log *zap.Logger) *Registry {
	return &Registry{staleMaxAge: staleMaxAge, log: log.Named("registry")}
}

// Register creates and stores a new Session. onRelease is invoked exactly
// once, at Deregister or reap time, whichever comes first.
func (r *Registry) Register(ctx context.Context, identityID string, fileRef int64, cancel context.CancelFunc, onRelease func()) *Session {
	s := &Session{
		ID:               uuid.New().String(),
		StartedAt:        time.Now(),
		ClientIdentityID: identityID,
		FileReferenceID:  fileRef,
		cancel:           cancel,
		onRelease:        onRelease,
	}
	s.lastActivityAt.Store(s.StartedAt.UnixNano())
	r.streams.Store(s.ID, s)
	r.count.Add(1)
	return s
}

// Touch updates last_activity_at for an id that might have been reaped
// already; a no-op in that case.
func (r *Registry) Touch(id string, n int64) {
	if v, ok := r.streams.Load(id); ok {
		v.(*Session).Touch(n)
	}
}

// Deregister removes the session and releases its resources.
func (r *Registry) Deregister(id string) {
	if v, ok := r.streams.LoadAndDelete(id); ok {
		r.count.Add(-1)
		v.(*Session).release()
	}
}

// SnapshotCount returns the current number of live entries. Linearizable
// with Register: a Register that happened-before this call is always
// reflected.
func (r *Registry) SnapshotCount() int64 { return r.count.Load() }

// CleanupStale reaps entries whose last activity is older than staleMaxAge.
// Idempotent: running it twice with no intervening traffic removes nothing
// the second time.
func (r *Registry) CleanupStale() int {
	if r.staleMaxAge <= 0 {
		return 0
	}
	now := time.Now()
	removed := 0
	r.streams.Range(func(key, value any) bool {
		s := value.(*Session)
		if now.Sub(s.LastActivity()) > r.staleMaxAge {
			r.Deregister(s.ID)
			removed++
		}
		return true
	})
	if removed > 0 {
		r.log.Info("reaped stale streams", zap.Int("count", removed))
	}
	return removed
}

// StartReaper runs CleanupStale on a ticker until ctx is cancelled.
func (r *Registry) StartReaper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.CleanupStale()
			}
		}
	}()
}
