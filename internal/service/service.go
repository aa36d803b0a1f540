// Package service assembles every streaming-core component into one
// explicitly constructed root object, replacing the global mutable
// singletons (session pool, client manager, stream tracker) the source
// system used for this state (spec.md §9).
package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/streambridge/fsb/internal/bot"
	"github.com/streambridge/fsb/internal/config"
	"github.com/streambridge/fsb/internal/dispatch"
	"github.com/streambridge/fsb/internal/fetch"
	"github.com/streambridge/fsb/internal/ledger"
	"github.com/streambridge/fsb/internal/locator"
	"github.com/streambridge/fsb/internal/policy"
	"github.com/streambridge/fsb/internal/registry"
)

// Service is the one object the Streaming Handler closes over. Nothing in
// this module reaches for package-level state.
type Service struct {
	Config     *config.Config
	Bot        *bot.Service
	Dispatcher *dispatch.Dispatcher
	Locators   *locator.Pools
	Fetcher    *fetch.Fetcher
	Registry   *registry.Registry
	Ledger     *ledger.Ledger

	Expiry    policy.ExpiryGate
	Bandwidth policy.BandwidthGate
	CORS      *policy.CORSGate
	RateLimit *policy.RateLimiter

	log *zap.Logger
}

// New starts the bot identities, opens the bandwidth ledger, and wires
// every policy gate from cfg. It starts the registry reaper and ledger
// flusher, both bound to ctx.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Service, error) {
	botSvc, err := bot.Start(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("service: starting bot identities: %w", err)
	}

	led, err := ledger.Open(cfg.LedgerDBPath, log)
	if err != nil {
		botSvc.Close()
		return nil, fmt.Errorf("service: opening bandwidth ledger: %w", err)
	}
	led.StartFlusher(ctx, time.Duration(cfg.FlushInterval)*time.Second)

	reg := registry.New(time.Duration(cfg.StaleStreamMaxAge)*time.Second, log)
	reg.StartReaper(ctx, time.Duration(cfg.CleanupIntervalSec)*time.Second)

	rl := policy.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	go sweepForever(ctx, rl)

	svc := &Service{
		Config:     cfg,
		Bot:        botSvc,
		Dispatcher: botSvc.Dispatcher,
		Locators:   locator.NewPools(cfg.LocatorCacheSize, log),
		Fetcher:    fetch.New(cfg.ChunkSizeBytes, log),
		Registry:   reg,
		Ledger:     led,
		Expiry:     policy.ExpiryGate{Seconds: cfg.LinkExpirySeconds},
		Bandwidth:  policy.BandwidthGate{Usage: led, CeilingBytes: cfg.BandwidthCeiling},
		CORS:       policy.NewCORSGate(cfg.CORSAllowedOrigins),
		RateLimit:  rl,
		log:        log.Named("service"),
	}
	return svc, nil
}

func sweepForever(ctx context.Context, rl *policy.RateLimiter) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Sweep()
		}
	}
}

// Close tears down the bot identities and flushes the bandwidth ledger one
// last time. The registry reaper and ledger flusher goroutines exit when
// the ctx passed to New is cancelled.
func (s *Service) Close() {
	_ = s.Ledger.Flush()
	s.Bot.Close()
}
