package upstream

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// IdentityOpener is implemented by whatever owns an identity's primary
// session; it knows how to mint a Session for a new data center.
type IdentityOpener interface {
	Opener
	ID() string
}

// poolKey identifies one (identity, data center) pair.
type poolKey struct {
	identityID string
	dcID       int
}

// inflight serializes concurrent opens of the same (identity, dc) pair so
// only one of them actually dials the platform.
type inflight struct {
	done    chan struct{}
	session Session
	err     error
}

// Pool maintains one Session per (ClientIdentity, data-center) pair, opening
// them lazily and sharing in-flight opens across concurrent callers.
type Pool struct {
	log *zap.Logger

	mu       sync.Mutex
	sessions map[poolKey]Session
	inFlight map[poolKey]*inflight
}

func NewPool(log *zap.Logger) *Pool {
	return &Pool{
		log:      log.Named("upstream.pool"),
		sessions: make(map[poolKey]Session),
		inFlight: make(map[poolKey]*inflight),
	}
}

// GetOrOpen returns the ready session for (identity, dcID), opening one if
// absent. Concurrent callers for the same key block on the same open.
func (p *Pool) GetOrOpen(ctx context.Context, identity IdentityOpener, dcID int) (Session, error) {
	key := poolKey{identityID: identity.ID(), dcID: dcID}

	p.mu.Lock()
	if s, ok := p.sessions[key]; ok && s.State() == StateReady {
		p.mu.Unlock()
		return s, nil
	}
	if f, ok := p.inFlight[key]; ok {
		p.mu.Unlock()
		<-f.done
		return f.session, f.err
	}
	f := &inflight{done: make(chan struct{})}
	p.inFlight[key] = f
	p.mu.Unlock()

	session, err := identity.Open(ctx, dcID)

	p.mu.Lock()
	delete(p.inFlight, key)
	if err == nil {
		p.sessions[key] = session
	}
	p.mu.Unlock()

	f.session, f.err = session, err
	close(f.done)

	if err != nil {
		p.log.Warn("failed to open upstream session",
			zap.String("identity", identity.ID()), zap.Int("dc", dcID), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return session, nil
}

// Invalidate closes and forgets the session for (identityID, dcID), forcing
// the next GetOrOpen to reopen it.
func (p *Pool) Invalidate(identityID string, dcID int) {
	key := poolKey{identityID: identityID, dcID: dcID}
	p.mu.Lock()
	s, ok := p.sessions[key]
	delete(p.sessions, key)
	p.mu.Unlock()
	if ok {
		_ = s.Close()
	}
}

// CloseAll tears down every open session, e.g. at process shutdown.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, s := range p.sessions {
		_ = s.Close()
		delete(p.sessions, key)
	}
}
