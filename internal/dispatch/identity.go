// Package dispatch implements the Client Dispatcher: it balances streaming
// work across a pool of bot identities by picking the least-loaded one that
// is currently usable.
package dispatch

import (
	"context"
	"sync/atomic"

	"github.com/streambridge/fsb/internal/upstream"
)

// PrimarySession is the session an identity uses for metadata lookups and,
// where the deployment permits it (spec.md §9 open question), for chunk
// reads in its own home data center.
type PrimarySession interface {
	upstream.Session
	upstream.MetadataFetcher
}

// Identity is one bot account usable for fetching chunks. wip is the
// work-in-progress counter: the number of concurrently streaming tasks
// currently assigned to this identity. It never goes negative and converges
// to zero once no requests reference the identity.
type Identity struct {
	id     string
	homeDC int

	primary PrimarySession
	opener  upstream.Opener

	wip atomic.Int64
}

func NewIdentity(id string, homeDC int, primary PrimarySession, opener upstream.Opener) *Identity {
	return &Identity{id: id, homeDC: homeDC, primary: primary, opener: opener}
}

func (i *Identity) ID() string             { return i.id }
func (i *Identity) HomeDataCenter() int     { return i.homeDC }
func (i *Identity) Primary() PrimarySession { return i.primary }
func (i *Identity) WIP() int64              { return i.wip.Load() }
func (i *Identity) Ready() bool             { return i.primary.State() == upstream.StateReady }

// Open implements upstream.IdentityOpener by delegating to the platform
// adapter's opener for this identity.
func (i *Identity) Open(ctx context.Context, dcID int) (upstream.Session, error) {
	return i.opener.Open(ctx, dcID)
}

// Acquire bumps the wip counter at the start of a streaming task.
func (i *Identity) Acquire() { i.wip.Add(1) }

// Release decrements the wip counter. It is safe to call from any exit
// path (success, error, or cancellation) exactly once per Acquire.
func (i *Identity) Release() {
	if i.wip.Add(-1) < 0 {
		// Acquire/Release are meant to be strictly paired; clamp instead of
		// drifting negative so the invariant in spec.md §8 still holds.
		i.wip.Store(0)
	}
}
