// Package locator implements the File Locator Cache: a per-identity,
// bounded LRU mapping a message id to the platform locator needed to read
// its bytes, plus a short negative cache for references that no longer
// resolve.
package locator

import (
	"context"
	"errors"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/streambridge/fsb/internal/upstream"
)

// negativeTTL is how long a "reference no longer valid" result is cached to
// stop hammering a dead reference (spec.md §4.3).
const negativeTTL = 60 * time.Second

var errNegativeCached = errors.New("locator: cached not-found")

type entry struct {
	loc      upstream.Locator
	negative bool
	until    time.Time // only meaningful when negative
}

// Cache is one identity's bounded LRU of message id -> Locator.
type Cache struct {
	identityID string
	maxEntries int
	lru        *lru.Cache[int64, entry]
	log        *zap.Logger
}

func New(identityID string, maxEntries int, log *zap.Logger) *Cache {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	c, err := lru.New[int64, entry](maxEntries)
	if err != nil {
		// maxEntries is always > 0 here, so lru.New cannot fail; a panic
		// would mean a programming error, not a runtime condition.
		panic(err)
	}
	return &Cache{
		identityID: identityID,
		maxEntries: maxEntries,
		lru:        c,
		log:        log.Named("locator.cache").With(zap.String("identity", identityID)),
	}
}

// Get resolves messageID through the cache, falling back to fetcher on a
// miss or expired negative entry. Concurrent readers are safe; the
// underlying LRU handles its own locking around insert/evict.
func (c *Cache) Get(ctx context.Context, messageID int64, fetcher upstream.MetadataFetcher) (upstream.Locator, error) {
	if e, ok := c.lru.Get(messageID); ok {
		if e.negative {
			if time.Now().Before(e.until) {
				return upstream.Locator{}, errNegativeCached
			}
			c.lru.Remove(messageID)
		} else {
			return e.loc, nil
		}
	}

	loc, err := fetcher.FetchMetadata(ctx, messageID)
	if err != nil {
		if errors.Is(err, upstream.ErrNotFound) {
			c.lru.Add(messageID, entry{negative: true, until: time.Now().Add(negativeTTL)})
		}
		return upstream.Locator{}, err
	}

	c.lru.Add(messageID, entry{loc: loc})
	return loc, nil
}

// IsNegativeCached reports whether err came from a cached negative entry
// rather than a live upstream call.
func IsNegativeCached(err error) bool { return errors.Is(err, errNegativeCached) }

// Len returns the current number of cached entries (positive and negative).
func (c *Cache) Len() int { return c.lru.Len() }

// Pools is a registry of per-identity caches, created lazily.
type Pools struct {
	maxEntries int
	log        *zap.Logger

	mu     sync.Mutex
	caches map[string]*Cache
}

func NewPools(maxEntries int, log *zap.Logger) *Pools {
	return &Pools{maxEntries: maxEntries, log: log, caches: make(map[string]*Cache)}
}

func (p *Pools) For(identityID string) *Cache {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.caches[identityID]; ok {
		return c
	}
	c := New(identityID, p.maxEntries, p.log)
	p.caches[identityID] = c
	return c
}
