package cron

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"ops-dashboard/internal/logger"
)

// FeedRefresher names the cron-state refresher.
const FeedRefresher = "cron-state"

// Refresher is anything the poller re-fetches on a fixed interval.
type Refresher interface {
	Name() string
	Refresh(ctx context.Context) error
}

// RefreshFunc adapts a function to Refresher.
type RefreshFunc struct {
	Label string
	Fn    func(ctx context.Context) error
}

func (r RefreshFunc) Name() string                      { return r.Label }
func (r RefreshFunc) Refresh(ctx context.Context) error { return r.Fn(ctx) }

// Poller runs registered refreshers on "@every <interval>" schedules.
type Poller struct {
	scheduler *cron.Cron
	timeout   time.Duration
	log       *zap.SugaredLogger

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

func NewPoller(timeout time.Duration) *Poller {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Poller{
		scheduler: cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		timeout:   timeout,
		log:       logger.ComponentLogger("poller"),
		entries:   make(map[string]cron.EntryID),
	}
}

// Add schedules r every interval, replacing any refresher with the same name.
func (p *Poller) Add(r Refresher, interval time.Duration) error {
	if interval <= 0 {
		return errors.Newf("poll interval for %s must be positive", r.Name())
	}
	id, err := p.scheduler.AddFunc("@every "+interval.String(), func() {
		p.run(r)
	})
	if err != nil {
		return errors.Wrapf(err, "schedule %s", r.Name())
	}

	p.mu.Lock()
	if old, ok := p.entries[r.Name()]; ok {
		p.scheduler.Remove(old)
	}
	p.entries[r.Name()] = id
	p.mu.Unlock()
	return nil
}

// Next reports when the named refresher runs next. The time is zero until
// the poller is started.
func (p *Poller) Next(name string) (time.Time, bool) {
	p.mu.Lock()
	id, ok := p.entries[name]
	p.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return p.scheduler.Entry(id).Next, true
}

func (p *Poller) Start() {
	p.scheduler.Start()
	p.log.Infow("⏰ Poller started", logger.FieldCount, len(p.scheduler.Entries()))
}

// Stop waits for running refreshes to finish.
func (p *Poller) Stop() {
	<-p.scheduler.Stop().Done()
}

func (p *Poller) run(r Refresher) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	start := time.Now()
	if err := r.Refresh(ctx); err != nil {
		p.log.Warnw("Refresh failed",
			logger.FieldSource, r.Name(),
			logger.FieldError, err)
		return
	}
	p.log.Debugw("Refreshed",
		logger.FieldSource, r.Name(),
		logger.FieldDurationMS, time.Since(start).Milliseconds())
}
