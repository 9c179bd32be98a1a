package prompt

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Target is one prompt kept warm by the Refresher
type Target struct {
	Name    string
	Version string
}

// Refresher refetches prompts in the background so requests rarely wait on
// the prompt service and outages start from a recent template.
type Refresher struct {
	resolver *Resolver
	targets  []Target
	ticker   *time.Ticker
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewRefresher(resolver *Resolver, targets ...Target) *Refresher {
	return &Refresher{
		resolver: resolver,
		targets:  targets,
		done:     make(chan struct{}),
	}
}

// Start refreshes once immediately, then every interval
func (rf *Refresher) Start(ctx context.Context, interval time.Duration) {
	rf.ticker = time.NewTicker(interval)

	rf.wg.Add(1)
	go func() {
		defer rf.wg.Done()
		rf.refreshAll(ctx)
		for {
			select {
			case <-rf.ticker.C:
				rf.refreshAll(ctx)
			case <-rf.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	log.Ctx(ctx).Info().Dur("interval", interval).Int("prompts", len(rf.targets)).Msg("Prompt refresher started")
}

// Stop halts the background loop and waits for an in-flight refresh
func (rf *Refresher) Stop() {
	rf.stopOnce.Do(func() {
		if rf.ticker != nil {
			rf.ticker.Stop()
		}
		close(rf.done)
	})
	rf.wg.Wait()
}

func (rf *Refresher) refreshAll(ctx context.Context) int {
	refreshed := 0
	for _, t := range rf.targets {
		tpl, err := rf.resolver.Refresh(ctx, t.Name, t.Version)
		if err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("prompt", t.Name).Msg("Failed to refresh prompt")
			continue
		}
		log.Ctx(ctx).Debug().Str("prompt", tpl.Name).Str("version", tpl.Version).Msg("Prompt refreshed")
		refreshed++
	}
	return refreshed
}
