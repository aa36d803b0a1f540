// Package bot wires the configured Telegram identities into the streaming
// core: it owns the one *telegram.Client per identity, constructs the
// dispatch.Identity list the Client Dispatcher selects from, and exposes a
// fetch.SessionResolver per identity for the Chunk Fetcher to use.
package bot

import (
	"context"
	"fmt"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
	"go.uber.org/zap"

	"github.com/streambridge/fsb/internal/config"
	"github.com/streambridge/fsb/internal/dispatch"
	fsbtelegram "github.com/streambridge/fsb/internal/telegram"
	"github.com/streambridge/fsb/internal/upstream"
)

// Identity bundles one configured bot's dispatch.Identity with the pieces
// internal/routes needs to drive a fetch for it: a fetch.SessionResolver
// bound to that identity's pool slot, and a live *telegram.Client for its
// connection lifecycle.
type Identity struct {
	*dispatch.Identity
	Resolver *resolver
	Self     Self
	client   *telegram.Client
}

// Self is the identity's own bot account, used to populate GET /api/info.
type Self struct {
	ID        int64
	Username  string
	FirstName string
}

// Service owns every configured identity and the shared upstream session
// pool they dial through.
type Service struct {
	pool       *upstream.Pool
	Dispatcher *dispatch.Dispatcher
	identities []*Identity
	log        *zap.Logger
}

// dcDialer implements fsbtelegram.DCDialer by opening a fresh gotd/td client
// against the data center resolved from Telegram's own DC option table, the
// standard way of following a FILE_MIGRATE redirect.
type dcDialer struct {
	ctx     context.Context
	apiID   int
	apiHash string
}

func (d dcDialer) Dial(ctx context.Context, dcID int) (*tg.Client, error) {
	client := telegram.NewClient(d.apiID, d.apiHash, telegram.Options{DC: dcID})
	ready := make(chan error, 1)
	go func() {
		err := client.Run(d.ctx, func(runCtx context.Context) error {
			ready <- nil
			<-runCtx.Done()
			return nil
		})
		select {
		case ready <- err:
		default:
		}
	}()
	select {
	case err := <-ready:
		if err != nil {
			return nil, fmt.Errorf("bot: connect to dc %d: %w", dcID, err)
		}
		return client.API(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Start authenticates every configured bot token and assembles the
// dispatch.Dispatcher the Streaming Handler consults per request. ctx bounds
// the initial auth and each identity's client, which keeps running until ctx
// is cancelled.
func Start(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Service, error) {
	pool := upstream.NewPool(log)

	var identities []*Identity
	for i, token := range cfg.BotTokens() {
		id := fmt.Sprintf("identity-%d", i)
		ident, err := newIdentity(ctx, id, cfg, token, pool, log)
		if err != nil {
			pool.CloseAll()
			return nil, fmt.Errorf("bot: starting %s: %w", id, err)
		}
		identities = append(identities, ident)
	}

	return NewService(pool, identities, cfg.MaxConcurrentPerUser, log), nil
}

// newIdentity authenticates one bot token and keeps its connection running
// in the background for the life of ctx, the same long-lived-client pattern
// every gotd/td bot uses.
func newIdentity(ctx context.Context, id string, cfg *config.Config, token string, pool *upstream.Pool, log *zap.Logger) (*Identity, error) {
	client := telegram.NewClient(cfg.APIID, cfg.APIHash, telegram.Options{})

	homeDC := 0 // not read from the live client; stays 0, so every real DC goes through the pool
	var self Self
	ready := make(chan error, 1)
	go func() {
		err := client.Run(ctx, func(runCtx context.Context) error {
			auth, err := client.Auth().Bot(runCtx, token)
			if err != nil {
				ready <- fmt.Errorf("bot auth: %w", err)
				return nil
			}
			if user, ok := auth.User.AsNotEmpty(); ok {
				self = Self{ID: user.ID, Username: user.Username, FirstName: user.FirstName}
			}
			ready <- nil
			<-runCtx.Done()
			return nil
		})
		if err != nil {
			log.Warn("identity connection ended", zap.String("identity", id), zap.Error(err))
		}
	}()

	if err := <-ready; err != nil {
		return nil, err
	}

	primary := fsbtelegram.NewSession(client.API(), homeDC, log)
	opener := fsbtelegram.NewOpener(client.API(), dcDialer{ctx: ctx, apiID: cfg.APIID, apiHash: cfg.APIHash}, log)
	dispatchIdentity := dispatch.NewIdentity(id, homeDC, primary, opener)

	ident := NewIdentity(dispatchIdentity, pool, self, log)
	ident.client = client
	return ident, nil
}

// NewIdentity wraps an already-constructed dispatch.Identity with a session
// resolver bound to pool, letting a caller assemble a bot Identity without
// going through a live Telegram handshake.
func NewIdentity(identity *dispatch.Identity, pool *upstream.Pool, self Self, log *zap.Logger) *Identity {
	return &Identity{
		Identity: identity,
		Resolver: newResolver(identity, pool, log),
		Self:     self,
	}
}

// NewService assembles a Service from already-built identities. Start uses
// this once auth succeeds for every configured token; it is also the seam
// that lets internal/routes exercise the Streaming Handler against fakes
// without a live connection.
func NewService(pool *upstream.Pool, identities []*Identity, maxConcurrentPerIdentity int, log *zap.Logger) *Service {
	dispatchIdentities := make([]*dispatch.Identity, len(identities))
	for i, ident := range identities {
		dispatchIdentities[i] = ident.Identity
	}
	return &Service{
		pool:       pool,
		Dispatcher: dispatch.New(dispatchIdentities, maxConcurrentPerIdentity),
		identities: identities,
		log:        log.Named("bot"),
	}
}

// Identities returns every configured identity alongside its resolver, in
// configured order.
func (s *Service) Identities() []*Identity { return s.identities }

// ResolverFor returns the fetch.SessionResolver bound to identityID, or nil
// if no such identity is configured.
func (s *Service) ResolverFor(identityID string) *resolver {
	for _, i := range s.identities {
		if i.ID() == identityID {
			return i.Resolver
		}
	}
	return nil
}

// Close tears down every identity's session pool entries. Client
// connections established via client.Run exit on ctx cancellation.
func (s *Service) Close() {
	s.pool.CloseAll()
}
