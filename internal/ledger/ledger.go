// Package ledger implements the BandwidthLedger: an append-only counter of
// bytes served, partitioned by calendar month, with process-local counters
// flushed periodically and idempotently to a persistent store.
package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// monthRecord is the persisted row for one calendar month.
type monthRecord struct {
	Month     string `gorm:"primaryKey;size:7"`
	BytesUsed int64
}

func (monthRecord) TableName() string { return "bandwidth" }

// Ledger tracks bytes served per month. Reads/writes to the in-process
// counters are guarded by a mutex; persistence is batched so a crash loses at most
// one flush interval of accounting, never correctness within the process.
type Ledger struct {
	db  *gorm.DB
	log *zap.Logger

	mu      sync.Mutex
	counts  map[string]int64
	nowFunc func() time.Time
}

// Open opens (creating if absent) a SQLite-backed ledger at path, grounded
// on the same gorm + glebarez/sqlite stack the sibling bot in this family
// uses for its persistent storage.
func Open(path string, log *zap.Logger) (*Ledger, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&monthRecord{}); err != nil {
		return nil, err
	}
	l := &Ledger{db: db, log: log.Named("ledger"), counts: make(map[string]int64), nowFunc: time.Now}

	var rows []monthRecord
	if err := db.Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		l.counts[r.Month] = r.BytesUsed
	}
	return l, nil
}

// monthKey is the ledger key for t: "2006-01" in UTC.
func monthKey(t time.Time) string { return t.UTC().Format("2006-01") }

// CurrentMonth returns the ledger key for now, at the moment of the call —
// accrual always keys by the time of the write, not the time the request
// started (spec.md §9).
func (l *Ledger) CurrentMonth() string { return monthKey(l.nowFunc()) }

// Accrue adds n bytes to the current month's counter. Safe for concurrent
// callers; the write is in-memory only until the next flush.
func (l *Ledger) Accrue(n int64) {
	if n <= 0 {
		return
	}
	key := l.CurrentMonth()
	l.mu.Lock()
	l.counts[key] += n
	l.mu.Unlock()
}

// Used returns the bytes_used for a given month key.
func (l *Ledger) Used(month string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[month]
}

// Flush persists every in-memory counter. It is an idempotent upsert keyed
// by month, so running it twice with no intervening Accrue calls writes the
// same rows again without changing their meaning.
func (l *Ledger) Flush() error {
	l.mu.Lock()
	snapshot := make(map[string]int64, len(l.counts))
	for k, v := range l.counts {
		snapshot[k] = v
	}
	l.mu.Unlock()

	for month, used := range snapshot {
		row := monthRecord{Month: month, BytesUsed: used}
		if err := l.db.Save(&row).Error; err != nil {
			l.log.Warn("failed to flush bandwidth ledger", zap.String("month", month), zap.Error(err))
			return err
		}
	}
	return nil
}

// StartFlusher runs Flush on a ticker until ctx is cancelled.
func (l *Ledger) StartFlusher(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = l.Flush()
				return
			case <-ticker.C:
				_ = l.Flush()
			}
		}
	}()
}
