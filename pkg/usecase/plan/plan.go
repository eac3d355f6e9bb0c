package plan

import (
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/placeset/pkg/interfaces"
	"github.com/m-mizutani/placeset/pkg/repository"
)

var (
	ErrPlanNotFound = goerr.New("plan not found")
	ErrInvalidToken = goerr.New("invalid continuation token")
)

const DefaultDepth = 3

// UseCase provides coverage plan operations
type UseCase struct {
	repo  repository.Repository
	depth int
	now   func() time.Time
}

var _ interfaces.Planner = (*UseCase)(nil)

// Option is a functional option for UseCase
type Option func(*UseCase)

// WithDepth sets how many tiling levels a new plan has. Level 1 is the
// request circle itself.
func WithDepth(depth int) Option {
	return func(uc *UseCase) {
		uc.depth = depth
	}
}

// WithClock replaces the time source
func WithClock(now func() time.Time) Option {
	return func(uc *UseCase) {
		uc.now = now
	}
}

// New creates a new plan UseCase instance
func New(repo repository.Repository, opts ...Option) *UseCase {
	uc := &UseCase{
		repo:  repo,
		depth: DefaultDepth,
		now:   time.Now,
	}

	for _, opt := range opts {
		opt(uc)
	}
	if uc.depth < 1 {
		uc.depth = 1
	}

	return uc
}
