package history

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// pruneTimeout bounds a single scheduled prune.
const pruneTimeout = time.Minute

// Pruner runs Service.Prune on a cron schedule.
type Pruner struct {
	svc       *Service
	retention time.Duration
	cron      *cron.Cron

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
}

// NewPruner schedules pruning of events older than retention. schedule is
// a standard five-field cron spec or a descriptor such as "@hourly" or
// "@every 30m".
func NewPruner(svc *Service, schedule string, retention time.Duration) (*Pruner, error) {
	if retention <= 0 {
		return nil, fmt.Errorf("history: retention must be positive, got %s", retention)
	}
	sched, err := cron.ParseStandard(schedule)
	if err != nil {
		return nil, fmt.Errorf("history: invalid prune schedule %q: %w", schedule, err)
	}

	p := &Pruner{
		svc:       svc,
		retention: retention,
		cron:      cron.New(),
	}
	p.cron.Schedule(sched, cron.FuncJob(p.run))
	return p, nil
}

// Start begins running the schedule. Scheduled prunes use a context derived
// from ctx.
func (p *Pruner) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.cron.Start()
	p.started = true
}

// Stop halts the schedule and waits for a running prune to finish.
func (p *Pruner) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.cancel()
	p.started = false
	p.mu.Unlock()

	<-p.cron.Stop().Done()
}

// RunOnce prunes immediately.
func (p *Pruner) RunOnce(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, pruneTimeout)
	defer cancel()
	return p.svc.Prune(ctx, p.retention)
}

func (p *Pruner) run() {
	p.mu.Lock()
	ctx := p.ctx
	p.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}

	if _, err := p.RunOnce(ctx); err != nil {
		p.svc.logger.Warn("scheduled history prune failed", "error", err)
	}
}
