package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	logx "followbot/pkg/logx"
)

const DefaultPruneSchedule = "@daily"

// Pruner drops audit entries older than a retention window on a cron schedule.
type Pruner struct {
	store     Store
	retention time.Duration
	schedule  string
	log       logx.Logger
	now       func() time.Time

	c *cron.Cron
}

// NewPruner validates schedule and returns a pruner. An empty schedule means DefaultPruneSchedule.
func NewPruner(store Store, retention time.Duration, schedule string, log logx.Logger) (*Pruner, error) {
	schedule = strings.TrimSpace(schedule)
	if schedule == "" {
		schedule = DefaultPruneSchedule
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("storage.prune_schedule: invalid %q: %w", schedule, err)
	}
	return &Pruner{
		store:     store,
		retention: retention,
		schedule:  schedule,
		log:       log,
		now:       time.Now,
	}, nil
}

// PruneOnce removes entries older than now-retention.
func (p *Pruner) PruneOnce(ctx context.Context) (int, error) {
	if p.store == nil || p.retention <= 0 {
		return 0, nil
	}
	return p.store.PruneAudit(ctx, p.now().Add(-p.retention))
}

// Run schedules pruning until ctx is done.
func (p *Pruner) Run(ctx context.Context) error {
	if p.store == nil || p.retention <= 0 {
		return nil
	}
	p.c = cron.New()
	if _, err := p.c.AddFunc(p.schedule, func() {
		pctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		n, err := p.PruneOnce(pctx)
		if err != nil {
			p.log.Warn("audit prune failed", logx.Err(err))
			return
		}
		p.log.Info("audit pruned", logx.Int("removed", n), logx.Duration("retention", p.retention))
	}); err != nil {
		return err
	}
	p.c.Start()
	p.log.Debug("audit pruner started", logx.String("schedule", p.schedule))

	<-ctx.Done()
	<-p.c.Stop().Done()
	return nil
}
