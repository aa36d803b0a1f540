package telegram

import (
	"context"
	"fmt"

	"github.com/gotd/td/tg"
	"go.uber.org/zap"

	"github.com/streambridge/fsb/internal/upstream"
)

// DCDialer produces a *tg.Client connected to a specific data center,
// independent of authorization. Implemented by the bot package, which owns
// the pool of underlying MTProto connections per data center.
type DCDialer interface {
	Dial(ctx context.Context, dcID int) (*tg.Client, error)
}

// Opener establishes new Sessions for one identity by migrating its
// authorization to another data center, the standard MTProto pattern for
// following a FILE_MIGRATE redirect.
type Opener struct {
	primary *tg.Client
	dialer  DCDialer
	log     *zap.Logger
}

func NewOpener(primary *tg.Client, dialer DCDialer, log *zap.Logger) *Opener {
	return &Opener{primary: primary, dialer: dialer, log: log.Named("telegram.opener")}
}

func (o *Opener) Open(ctx context.Context, dcID int) (upstream.Session, error) {
	client, err := o.dialer.Dial(ctx, dcID)
	if err != nil {
		return nil, fmt.Errorf("telegram: dial dc %d: %w", dcID, err)
	}

	exported, err := o.primary.AuthExportAuthorization(ctx, &tg.AuthExportAuthorizationRequest{DCID: dcID})
	if err != nil {
		return nil, fmt.Errorf("telegram: export authorization for dc %d: %w", dcID, err)
	}
	if _, err := client.AuthImportAuthorization(ctx, &tg.AuthImportAuthorizationRequest{
		ID:    exported.ID,
		Bytes: exported.Bytes,
	}); err != nil {
		return nil, fmt.Errorf("telegram: import authorization into dc %d: %w", dcID, err)
	}

	return NewSession(client, dcID, o.log), nil
}
