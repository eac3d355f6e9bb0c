package dataset

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/placeset/pkg/adapter"
	"github.com/m-mizutani/placeset/pkg/filter"
	"github.com/m-mizutani/placeset/pkg/interfaces"
	"github.com/m-mizutani/placeset/pkg/repository"
	"github.com/panjf2000/ants/v2"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultMinDelay      = 700 * time.Millisecond
	DefaultBackoffBase   = 700 * time.Millisecond
	DefaultAttempts      = 3
	DefaultSentinelCount = 20
	DefaultMaxIterations = 30
	DefaultThreshold     = 20
)

// UseCase acquires place datasets from the provider through the dataset
// cache and drives coverage plans
type UseCase struct {
	repo       repository.Repository
	places     adapter.Places
	decomposer interfaces.Decomposer
	planner    interfaces.Planner
	policy     *filter.Policy

	pool     *ants.Pool
	poolSize int
	group    singleflight.Group
	calls    atomic.Int64

	timer         retry.Timer
	now           func() time.Time
	minDelay      time.Duration
	backoffBase   time.Duration
	attempts      uint
	sentinelCount int
	maxIterations int
	threshold     int
}

// Option is a functional option for UseCase
type Option func(*UseCase)

// WithPolicy sets the Rego policy applied to full data results
func WithPolicy(p *filter.Policy) Option {
	return func(uc *UseCase) {
		uc.policy = p
	}
}

// WithPoolSize sets how many missing term sets are fetched concurrently
func WithPoolSize(n int) Option {
	return func(uc *UseCase) {
		uc.poolSize = n
	}
}

// WithTimer replaces the timer used for pacing and backoff waits
func WithTimer(t retry.Timer) Option {
	return func(uc *UseCase) {
		uc.timer = t
	}
}

// WithClock replaces the time source of plan progress records
func WithClock(now func() time.Time) Option {
	return func(uc *UseCase) {
		uc.now = now
	}
}

// WithMinDelay sets the pause observed before every provider call. Zero
// disables pacing.
func WithMinDelay(d time.Duration) Option {
	return func(uc *UseCase) {
		uc.minDelay = d
	}
}

// WithBackoffBase sets the base of the exponential backoff
func WithBackoffBase(d time.Duration) Option {
	return func(uc *UseCase) {
		uc.backoffBase = d
	}
}

// WithAttempts sets the attempt budget of each protocol
func WithAttempts(n uint) Option {
	return func(uc *UseCase) {
		uc.attempts = n
	}
}

// WithSentinelCount sets how many placeholders an exhausted call yields
func WithSentinelCount(n int) Option {
	return func(uc *UseCase) {
		uc.sentinelCount = n
	}
}

// WithMaxIterations bounds the coverage loop
func WithMaxIterations(n int) Option {
	return func(uc *UseCase) {
		uc.maxIterations = n
	}
}

// WithThreshold sets the feature count below which a plan step is considered
// exhausted
func WithThreshold(n int) Option {
	return func(uc *UseCase) {
		uc.threshold = n
	}
}

// New creates a new dataset UseCase instance. Close releases its worker pool.
func New(
	repo repository.Repository,
	places adapter.Places,
	decomposer interfaces.Decomposer,
	planner interfaces.Planner,
	opts ...Option,
) (*UseCase, error) {
	uc := &UseCase{
		repo:          repo,
		places:        places,
		decomposer:    decomposer,
		planner:       planner,
		poolSize:      max(runtime.NumCPU(), 4),
		timer:         &realTimer{},
		now:           time.Now,
		minDelay:      DefaultMinDelay,
		backoffBase:   DefaultBackoffBase,
		attempts:      DefaultAttempts,
		sentinelCount: DefaultSentinelCount,
		maxIterations: DefaultMaxIterations,
		threshold:     DefaultThreshold,
	}

	for _, opt := range opts {
		opt(uc)
	}
	if uc.attempts < 1 {
		uc.attempts = 1
	}
	if uc.maxIterations < 1 {
		uc.maxIterations = 1
	}

	pool, err := ants.NewPool(max(uc.poolSize, 1))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create fetch pool", goerr.V("size", uc.poolSize))
	}
	uc.pool = pool

	return uc, nil
}

// Close releases the worker pool
func (u *UseCase) Close() {
	u.pool.Release()
}

// Calls returns the number of provider calls issued so far, including
// retries and details lookups
func (u *UseCase) Calls() int64 {
	return u.calls.Load()
}

type realTimer struct{}

func (t *realTimer) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}
