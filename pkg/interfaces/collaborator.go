package interfaces

import (
	"context"

	"github.com/m-mizutani/placeset/pkg/model"
)

// Decomposer splits a boolean query into provider-sized term sets
type Decomposer interface {
	// Separate splits a raw boolean query into its category clause and its
	// keyword clause. Either may be empty.
	Separate(raw string) (category, keyword string, err error)

	// CategorySequence expands a category clause into ordered (included,
	// excluded) type tuples
	CategorySequence(clause string) ([]model.QueryTuple, error)

	// KeywordSequence expands a keyword clause into ordered (included,
	// excluded) phrase tuples
	KeywordSequence(clause string) ([]model.QueryTuple, error)
}

// Planner owns coverage plan state for full data acquisition
type Planner interface {
	// Build resolves a request into the plan step it should run. A request
	// without continuation token starts at step 0 of a plan created on demand.
	Build(ctx context.Context, req *model.FetchRequest) (*model.PlanCursor, error)

	// Rectify marks the step skipped and returns the next pending step index
	// and its token, or -1 and an empty token when the plan is exhausted.
	Rectify(ctx context.Context, planName string, index int) (int, string, error)

	// MarkResult records whether the step produced features
	MarkResult(ctx context.Context, planName string, index int, hasFeatures bool) error
}
