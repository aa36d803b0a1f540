package registry

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestRegisterSnapshotCountLinearizable(t *testing.T) {
	r := New(time.Hour, zap.NewNop())
	_, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := r.Register(context.Background(), "identity-0", 42, cancel, func() {})
	if got := r.SnapshotCount(); got != 1 {
		t.Fatalf("SnapshotCount = %d, want 1", got)
	}
	r.Deregister(s.ID)
	if got := r.SnapshotCount(); got != 0 {
		t.Fatalf("SnapshotCount after deregister = %d, want 0", got)
	}
}

func TestDeregisterRunsReleaseExactlyOnce(t *testing.T) {
	r := New(time.Hour, zap.NewNop())
	released := 0
	_, cancel := context.WithCancel(context.Background())
	s := r.Register(context.Background(), "identity-0", 1, cancel, func() { released++ })

	r.Deregister(s.ID)
	r.Deregister(s.ID) // second call is a no-op: already removed
	if released != 1 {
		t.Fatalf("release called %d times, want 1", released)
	}
}

func TestCleanupStaleReapsOldEntries(t *testing.T) {
	r := New(10*time.Millisecond, zap.NewNop())
	released := false
	_, cancel := context.WithCancel(context.Background())
	s := r.Register(context.Background(), "identity-0", 1, cancel, func() { released = true })

	time.Sleep(20 * time.Millisecond)
	removed := r.CleanupStale()
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if !released {
		t.Fatal("expected onRelease to have run")
	}
	if r.SnapshotCount() != 0 {
		t.Fatalf("SnapshotCount = %d, want 0", r.SnapshotCount())
	}
	_ = s
}

func TestCleanupStaleIsIdempotent(t *testing.T) {
	r := New(10*time.Millisecond, zap.NewNop())
	_, cancel := context.WithCancel(context.Background())
	r.Register(context.Background(), "identity-0", 1, cancel, func() {})

	time.Sleep(20 * time.Millisecond)
	first := r.CleanupStale()
	second := r.CleanupStale()
	if first != 1 {
		t.Fatalf("first cleanup removed = %d, want 1", first)
	}
	if second != 0 {
		t.Fatalf("second cleanup removed = %d, want 0", second)
	}
}

func TestTouchUpdatesBytesSentAndActivity(t *testing.T) {
	r := New(time.Hour, zap.NewNop())
	_, cancel := context.WithCancel(context.Background())
	s := r.Register(context.Background(), "identity-0", 1, cancel, func() {})

	r.Touch(s.ID, 128)
	r.Touch(s.ID, 256)
	if got := s.BytesSent(); got != 384 {
		t.Fatalf("BytesSent = %d, want 384", got)
	}
}

func TestTouchOnUnknownIDIsNoop(t *testing.T) {
	r := New(time.Hour, zap.NewNop())
	r.Touch("does-not-exist", 10) // must not panic
}
