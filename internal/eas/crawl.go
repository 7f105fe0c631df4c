package eas

import (
	"context"
	"time"

	"github.com/retrocast/retro-cast/internal/config"
	"github.com/retrocast/retro-cast/internal/player"
	"github.com/retrocast/retro-cast/internal/state"
)

// Keeper owns the crawl overlay's lifetime. Tunes and loads discard the
// player's filter chain, so the keeper re-applies the crawl on every pass
// until the expiry, then removes it and deletes the crawl files.
type Keeper struct {
	cfg *config.Config
	p   player.Controller
	st  *state.Store

	now func() time.Time
}

func NewKeeper(cfg *config.Config, p player.Controller, st *state.Store) *Keeper {
	return &Keeper{cfg: cfg, p: p, st: st, now: time.Now}
}

// SetClock overrides wall-clock reads (tests).
func (k *Keeper) SetClock(now func() time.Time) { k.now = now }

// Run ticks every 3 seconds until ctx is done.
func (k *Keeper) Run(ctx context.Context) error {
	tick := time.NewTicker(3 * time.Second)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			k.Tick()
		}
	}
}

// Tick enforces the crawl's presence or expiry once.
func (k *Keeper) Tick() {
	if !k.st.CrawlActive() {
		return
	}
	expiry, ok := k.st.CrawlExpiry()
	if !ok || !k.now().Before(expiry) {
		// Missing expiry counts as expired.
		k.p.RemoveFilter(player.CrawlLabel)
		k.st.ClearCrawl()
		return
	}
	text, ok := k.st.CrawlText()
	if !ok {
		k.p.RemoveFilter(player.CrawlLabel)
		k.st.ClearCrawl()
		return
	}
	// AddFilter skips labels already installed, so this is a cheap no-op
	// except right after a tune or load dropped the chain.
	k.p.AddFilter(player.CrawlLabel, player.CrawlSpec(text, k.cfg.CrawlFont))
}
