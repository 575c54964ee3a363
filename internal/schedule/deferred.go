// Package schedule provides the one-shot deferred poll that backstops the
// push callback. One timer is armed per submission; it fires exactly once,
// well after expected completion, and funnels into the same reconciliation
// logic as every other notification.
package schedule

import (
	"context"
	"sync"
	"time"

	"tunesmith/internal/infra"
)

// PollFunc reconciles one correlation id.
type PollFunc func(ctx context.Context, externalID string)

// DeferredPoller arms one-shot fallback polls. It holds no other scheduling
// state; tasks whose callback already arrived simply hit the terminal guard
// when the timer fires.
type DeferredPoller struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
	delay  time.Duration
	poll   PollFunc
	logger infra.Logger
}

// NewDeferredPoller builds a poller firing each scheduled id once after delay.
func NewDeferredPoller(delay time.Duration, poll PollFunc, logger infra.Logger) *DeferredPoller {
	return &DeferredPoller{
		timers: make(map[string]*time.Timer),
		delay:  delay,
		poll:   poll,
		logger: logger,
	}
}

// Schedule arms the one-shot poll for externalID. Scheduling an id that is
// already armed is a no-op; the original deadline stands.
func (p *DeferredPoller) Schedule(externalID string) {
	if externalID == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, armed := p.timers[externalID]; armed {
		return
	}
	p.timers[externalID] = time.AfterFunc(p.delay, func() {
		p.fire(externalID)
	})
	p.logger.Debug().
		Str("external_id", externalID).
		Dur("delay", p.delay).
		Msg("schedule: deferred poll armed")
}

func (p *DeferredPoller) fire(externalID string) {
	p.mu.Lock()
	delete(p.timers, externalID)
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	p.logger.Info().Str("external_id", externalID).Msg("schedule: deferred poll firing")
	p.poll(ctx, externalID)
}

// Stop cancels all armed timers. Used during shutdown; pending polls are
// picked up by the reconciler sweep instead.
func (p *DeferredPoller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, timer := range p.timers {
		timer.Stop()
		delete(p.timers, id)
	}
}
