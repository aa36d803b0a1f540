// Package upstreamtest provides a deterministic in-memory upstream.Session
// for exercising the Chunk Fetcher and Streaming Handler without a real
// Telegram connection. Served bytes are B[i] = i mod 256, matching the
// fixtures spec.md §8 describes.
package upstreamtest

import (
	"bytes"
	"context"
	"fmt"
	"sync/atomic"

	"github.com/streambridge/fsb/internal/upstream"
)

// FakeSession serves deterministic bytes for a single Locator and records
// every FetchChunk call for assertions.
type FakeSession struct {
	DC        int
	Size      int64
	FailAfter int32 // if > 0, the call at this 1-based index fails with Err
	Err       error
	Closed    bool // when true, State reports StateClosed instead of StateReady

	// WantFileReference, when non-nil, makes FetchChunk fail unless the
	// Locator it's called with carries this exact reference — this is what
	// catches a regression where chunk reads are keyed off some private,
	// per-session cache instead of data traveling with the Locator itself,
	// since a session other than the one that resolved metadata would then
	// never have the right reference cached.
	WantFileReference []byte

	calls int32
}

func NewFakeSession(dc int, size int64) *FakeSession {
	return &FakeSession{DC: dc, Size: size}
}

func (f *FakeSession) FetchChunk(ctx context.Context, loc upstream.Locator, offset, length int64) ([]byte, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if f.FailAfter > 0 && n == f.FailAfter {
		return nil, f.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.WantFileReference != nil && !bytes.Equal(loc.FileReference, f.WantFileReference) {
		return nil, fmt.Errorf("upstreamtest: FetchChunk called without the locator's file reference")
	}

	end := offset + length
	if end > f.Size {
		end = f.Size
	}
	if offset >= end {
		return nil, nil
	}
	out := make([]byte, end-offset)
	for i := range out {
		out[i] = byte((offset + int64(i)) % 256)
	}
	return out, nil
}

func (f *FakeSession) State() upstream.SessionState {
	if f.Closed {
		return upstream.StateClosed
	}
	return upstream.StateReady
}
func (f *FakeSession) DataCenterID() int { return f.DC }
func (f *FakeSession) Close() error      { f.Closed = true; return nil }
func (f *FakeSession) Calls() int32      { return atomic.LoadInt32(&f.calls) }

// FakeMetadataFetcher always resolves to the same Locator.
type FakeMetadataFetcher struct {
	Locator upstream.Locator
	Err     error
}

func (f *FakeMetadataFetcher) FetchMetadata(ctx context.Context, messageID int64) (upstream.Locator, error) {
	if f.Err != nil {
		return upstream.Locator{}, f.Err
	}
	return f.Locator, nil
}

// FakePrimarySession combines FakeSession and FakeMetadataFetcher to satisfy
// interfaces (such as dispatch.PrimarySession) that need both a Session and
// a MetadataFetcher on one identity.
type FakePrimarySession struct {
	*FakeSession
	*FakeMetadataFetcher
}

func NewFakePrimarySession(dc int, size int64) *FakePrimarySession {
	return &FakePrimarySession{
		FakeSession:         NewFakeSession(dc, size),
		FakeMetadataFetcher: &FakeMetadataFetcher{Locator: upstream.Locator{DataCenterID: dc, Size: size}},
	}
}

// FakeOpener returns a preconfigured Session regardless of the requested dc,
// useful for tests that don't exercise cross-datacenter migration.
type FakeOpener struct {
	Session upstream.Session
	Err     error
}

func (f *FakeOpener) Open(ctx context.Context, dcID int) (upstream.Session, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Session, nil
}
