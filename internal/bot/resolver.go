package bot

import (
	"context"

	"go.uber.org/zap"

	"github.com/streambridge/fsb/internal/dispatch"
	"github.com/streambridge/fsb/internal/upstream"
)

// resolver implements fetch.SessionResolver for one identity: the home data
// center is served directly by the identity's primary session, any other
// data center goes through the shared pool (opening one lazily via the
// identity's Opener on first use).
type resolver struct {
	identity *dispatch.Identity
	pool     *upstream.Pool
	log      *zap.Logger
}

func newResolver(identity *dispatch.Identity, pool *upstream.Pool, log *zap.Logger) *resolver {
	return &resolver{identity: identity, pool: pool, log: log.Named("bot.resolver")}
}

func (r *resolver) Session(ctx context.Context, dcID int) (upstream.Session, error) {
	if dcID == r.identity.HomeDataCenter() {
		return r.identity.Primary(), nil
	}
	return r.pool.GetOrOpen(ctx, identityOpener{r.identity}, dcID)
}

func (r *resolver) Invalidate(dcID int) {
	if dcID == r.identity.HomeDataCenter() {
		return
	}
	r.pool.Invalidate(r.identity.ID(), dcID)
}

// identityOpener adapts *dispatch.Identity to upstream.IdentityOpener.
type identityOpener struct{ *dispatch.Identity }
