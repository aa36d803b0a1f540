package locator

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/streambridge/fsb/internal/upstream"
	"github.com/streambridge/fsb/internal/upstream/upstreamtest"
)

func TestGetCachesOnMiss(t *testing.T) {
	fetcher := &upstreamtest.FakeMetadataFetcher{Locator: upstream.Locator{Size: 42}}
	c := New("identity-0", 100, zap.NewNop())

	loc, err := c.Get(context.Background(), 1, fetcher)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if loc.Size != 42 {
		t.Fatalf("Size = %d, want 42", loc.Size)
	}
	if c.Len() != 1 {
		t.Fatalf("Len = %d, want 1", c.Len())
	}
}

func TestGetServesFromCacheWithoutRefetch(t *testing.T) {
	fetcher := &upstreamtest.FakeMetadataFetcher{Locator: upstream.Locator{Size: 42}}
	c := New("identity-0", 100, zap.NewNop())

	if _, err := c.Get(context.Background(), 1, fetcher); err != nil {
		t.Fatalf("Get: %v", err)
	}

	// Poison the fetcher: a second Get for the same id must not call it.
	fetcher.Err = context.DeadlineExceeded
	loc, err := c.Get(context.Background(), 1, fetcher)
	if err != nil {
		t.Fatalf("Get (cached): %v", err)
	}
	if loc.Size != 42 {
		t.Fatalf("Size = %d, want 42", loc.Size)
	}
}

func TestGetNegativeCachesNotFound(t *testing.T) {
	fetcher := &upstreamtest.FakeMetadataFetcher{Err: upstream.ErrNotFound}
	c := New("identity-0", 100, zap.NewNop())

	_, err := c.Get(context.Background(), 1, fetcher)
	if err != upstream.ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	_, err = c.Get(context.Background(), 1, fetcher)
	if !IsNegativeCached(err) {
		t.Fatalf("err = %v, want negative-cached", err)
	}
}

func TestNegativeCacheExpires(t *testing.T) {
	fetcher := &upstreamtest.FakeMetadataFetcher{Err: upstream.ErrNotFound}
	c := New("identity-0", 100, zap.NewNop())
	c.lru.Add(int64(1), entry{negative: true, until: time.Now().Add(-time.Second)})

	fetcher.Err = nil
	fetcher.Locator = upstream.Locator{Size: 7}
	loc, err := c.Get(context.Background(), 1, fetcher)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if loc.Size != 7 {
		t.Fatalf("Size = %d, want 7 (expired negative entry should have been refetched)", loc.Size)
	}
}

func TestPoolsForReturnsSameCachePerIdentity(t *testing.T) {
	p := NewPools(10, zap.NewNop())
	a1 := p.For("a")
	a2 := p.For("a")
	b := p.For("b")
	if a1 != a2 {
		t.Fatal("expected the same cache instance for repeated calls with the same identity")
	}
	if a1 == b {
		t.Fatal("expected distinct caches for distinct identities")
	}
}
