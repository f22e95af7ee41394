package repeat

import (
	"context"
	"sync"
	"time"

	kit "followbot/internal/transport"
	logx "followbot/pkg/logx"
)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Broadcaster answers "广播<payload>" by sending the payload Count times,
// Interval seconds apart.
type Broadcaster struct {
	extract *Extractor
	toggles ToggleStore
	config  func() BroadcastConfig
	sleep   Sleeper
	log     logx.Logger

	mu sync.Mutex
	// spawn runs the emission loop. Nil runs it inline and returns its error.
	spawn func(name string, fn func(ctx context.Context) error)
	// started is called once a broadcast is accepted.
	started func(msg *kit.Message, cfg BroadcastConfig)
}

func NewBroadcaster(toggles ToggleStore, config func() BroadcastConfig) *Broadcaster {
	return &Broadcaster{
		extract: NewExtractor(PhraseBroadcast),
		toggles: toggles,
		config:  config,
		sleep:   sleepCtx,
		log:     logx.Nop(),
	}
}

func (b *Broadcaster) Handle(ctx context.Context, msg *kit.Message, emit Emit) error {
	payload, ok := b.extract.Extract(msg.Text)
	if !ok {
		return nil
	}
	if !b.toggles.Enabled(FeatureBroadcast, groupKey(msg)) {
		return nil
	}
	cfg := b.config()
	if b.started != nil {
		b.started(msg, cfg)
	}

	// Held across spawn so setSpawn(nil) cannot return while a spawn is in flight.
	b.mu.Lock()
	if b.spawn == nil {
		b.mu.Unlock()
		return b.run(ctx, payload, cfg, emit)
	}
	b.spawn("broadcast."+groupKey(msg), func(ctx context.Context) error {
		if err := b.run(ctx, payload, cfg, emit); err != nil {
			b.log.Warn("broadcast stopped early", logx.Int64("chat_id", msg.ChatID), logx.Err(err))
		}
		return nil
	})
	b.mu.Unlock()
	return nil
}

func (b *Broadcaster) setSpawn(spawn func(string, func(context.Context) error)) {
	b.mu.Lock()
	b.spawn = spawn
	b.mu.Unlock()
}

// run emits payload cfg.Count times. There is no wait after the last emission.
func (b *Broadcaster) run(ctx context.Context, payload string, cfg BroadcastConfig, emit Emit) error {
	wait := cfg.Wait()
	for i := 0; i < cfg.Count; i++ {
		if i > 0 {
			if err := b.sleep(ctx, wait); err != nil {
				return err
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := emit(ctx, payload); err != nil {
			return err
		}
	}
	return nil
}
