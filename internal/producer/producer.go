// Package producer runs the fixed-tick package→exec→persist→advance loop
// shared by both tiers (§4.7): the tier-specific work is a single
// closure, so one ticking engine serves the token tier and the channel
// tier alike.
package producer

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// TickFunc performs one block production cycle: drain the mempool,
// execute the package, persist the resulting block, advance the tip.
type TickFunc func(ctx context.Context) error

// Producer ticks TickFunc on a fixed interval until its context is
// cancelled.
type Producer struct {
	interval time.Duration
	tick     TickFunc
	logger   *logrus.Entry
}

// New returns a Producer that calls tick once per interval.
func New(interval time.Duration, tick TickFunc, logger *logrus.Entry) *Producer {
	return &Producer{interval: interval, tick: tick, logger: logger}
}

// Run blocks, ticking until ctx is cancelled. A failed tick is logged and
// does not stop the loop — the next tick gets a fresh chance, matching
// the tier executors' own policy of never aborting a block wholesale.
func (p *Producer) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.tick(ctx); err != nil {
				p.logger.WithError(err).Error("block production tick failed")
			}
		}
	}
}
