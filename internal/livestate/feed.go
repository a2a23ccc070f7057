package livestate

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"ops-dashboard/internal/logger"
	"ops-dashboard/internal/schedule"
	"ops-dashboard/internal/store/kv"
)

const (
	defaultMaxAge       = 5 * time.Second
	defaultRetryBase    = 500 * time.Millisecond
	defaultRetries      = 3
	backgroundRefreshTO = 30 * time.Second
)

// Snapshot is one view of the live feed. Jobs is never nil.
type Snapshot struct {
	Jobs      []schedule.LiveJobState `json:"jobs"`
	Source    string                  `json:"source"`
	FetchedAt time.Time               `json:"fetched_at"`
	Error     string                  `json:"error,omitempty"`
	// Missing is set when the backend has no cron state at all.
	Missing bool `json:"missing"`
}

// Feed caches the decoded cron state. Get serves the cached copy and kicks
// off a background refresh once it is older than the max age; concurrent
// refreshes collapse into one fetch. A failed fetch keeps the last good jobs.
type Feed struct {
	store     kv.Store
	key       string
	maxAge    time.Duration
	retryBase time.Duration
	retries   uint64
	now       func() time.Time
	log       *zap.SugaredLogger

	group singleflight.Group

	mu        sync.RWMutex
	snap      Snapshot
	loaded    bool
	listeners []func(Snapshot)
}

type Option func(*Feed)

// WithMaxAge sets how old the cache may get before Get revalidates it.
func WithMaxAge(d time.Duration) Option {
	return func(f *Feed) {
		if d > 0 {
			f.maxAge = d
		}
	}
}

// WithRetry sets the Fibonacci backoff base and the retry count per refresh.
func WithRetry(base time.Duration, retries uint64) Option {
	return func(f *Feed) {
		if base > 0 {
			f.retryBase = base
		}
		f.retries = retries
	}
}

func WithClock(now func() time.Time) Option {
	return func(f *Feed) {
		if now != nil {
			f.now = now
		}
	}
}

func NewFeed(store kv.Store, key string, opts ...Option) *Feed {
	f := &Feed{
		store:     store,
		key:       key,
		maxAge:    defaultMaxAge,
		retryBase: defaultRetryBase,
		retries:   defaultRetries,
		now:       time.Now,
		log:       logger.ComponentLogger("livestate"),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.snap = Snapshot{Jobs: []schedule.LiveJobState{}, Source: f.source()}
	return f
}

// Subscribe registers fn to run after every refresh, successful or not.
func (f *Feed) Subscribe(fn func(Snapshot)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = append(f.listeners, fn)
}

// Get returns the cached snapshot. The first call loads synchronously.
func (f *Feed) Get(ctx context.Context) Snapshot {
	f.mu.RLock()
	loaded, snap := f.loaded, f.snap
	f.mu.RUnlock()

	if !loaded {
		return f.Refresh(ctx)
	}
	if f.now().Sub(snap.FetchedAt) > f.maxAge {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), backgroundRefreshTO)
			defer cancel()
			f.Refresh(ctx)
		}()
	}
	return snap
}

// Snapshot returns the cached snapshot without triggering any fetch.
func (f *Feed) Snapshot() Snapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.snap
}

// Refresh fetches the cron state now, sharing the fetch with any refresh
// already in flight.
func (f *Feed) Refresh(ctx context.Context) Snapshot {
	v, _, _ := f.group.Do(f.key, func() (interface{}, error) {
		return f.fetch(ctx), nil
	})
	return v.(Snapshot)
}

func (f *Feed) fetch(ctx context.Context) Snapshot {
	start := f.now()
	var (
		jobs    []schedule.LiveJobState
		missing bool
	)

	backoff := retry.WithMaxRetries(f.retries, retry.NewFibonacci(f.retryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		raw, err := f.store.Get(ctx, f.key)
		if errors.Is(err, kv.ErrNotFound) {
			missing = true
			jobs = []schedule.LiveJobState{}
			return nil
		}
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return retry.RetryableError(err)
		}
		decoded, err := Decode(raw)
		if err != nil {
			return err
		}
		jobs = decoded
		return nil
	})

	f.mu.Lock()
	if err != nil {
		f.snap.Error = err.Error()
		f.log.Warnw("Cron state refresh failed, keeping last snapshot",
			logger.FieldKey, f.key,
			logger.FieldBackend, f.store.Name(),
			logger.FieldCount, len(f.snap.Jobs),
			logger.FieldError, err)
	} else {
		f.snap = Snapshot{Jobs: jobs, Source: f.source(), Missing: missing}
		f.log.Debugw("Cron state refreshed",
			logger.FieldKey, f.key,
			logger.FieldCount, len(jobs),
			logger.FieldDurationMS, f.now().Sub(start).Milliseconds())
	}
	// Failures reset the age too; a broken backend is retried once per max age.
	f.snap.FetchedAt = f.now()
	f.loaded = true
	snap := f.snap
	listeners := append([]func(Snapshot){}, f.listeners...)
	f.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
	return snap
}

func (f *Feed) source() string {
	return f.store.Name() + ":" + f.key
}
