package plan

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/placeset/pkg/model"
	"github.com/m-mizutani/placeset/pkg/utils/logging"
)

// Build resolves a full data request into its plan step. Without a
// continuation token the plan is looked up by name and created when absent,
// and step 0 is used. The returned cursor carries the request rewritten to
// the step's geography and query, and the token of the next pending step.
func (u *UseCase) Build(ctx context.Context, req *model.FetchRequest) (*model.PlanCursor, error) {
	var (
		name  string
		index int
	)

	if req.PageToken == "" {
		name = Name(req)
		if _, err := u.ensure(ctx, name, req); err != nil {
			return nil, err
		}
	} else {
		var err error
		if name, index, err = ParseToken(req.PageToken); err != nil {
			return nil, err
		}
	}

	p, err := u.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	step, err := p.Step(index)
	if err != nil {
		return nil, goerr.Wrap(ErrInvalidToken, "token points outside the plan",
			goerr.V("plan", name), goerr.V("index", index), goerr.V("error", err.Error()))
	}

	updated := *req
	updated.Geography = step.Geography
	updated.BooleanQuery = step.Query
	updated.PageToken = step.Token

	cursor := &model.PlanCursor{
		Request:  &updated,
		PlanName: name,
		Index:    index,
	}
	for _, s := range p.Steps[index+1:] {
		if s.IsPending() {
			cursor.NextPageToken = s.Token
			break
		}
	}

	logging.From(ctx).Debug("plan step resolved",
		"plan", name, "index", index, "circle", step.Circle, "status", step.Status)
	return cursor, nil
}

func (u *UseCase) ensure(ctx context.Context, name string, req *model.FetchRequest) (*model.Plan, error) {
	p, err := u.repo.GetPlan(ctx, name)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load plan", goerr.V("plan", name))
	}
	if p != nil {
		return p, nil
	}

	p = newPlan(name, req, u.depth)
	p.CreatedAt = u.now()
	p.UpdatedAt = p.CreatedAt
	if err := u.repo.PutPlan(ctx, p); err != nil {
		return nil, goerr.Wrap(err, "failed to save plan", goerr.V("plan", name))
	}

	logging.From(ctx).Info("plan created", "plan", name, "steps", len(p.Steps), "depth", u.depth)
	return p, nil
}

// Get loads a plan by name
func (u *UseCase) Get(ctx context.Context, name string) (*model.Plan, error) {
	p, err := u.repo.GetPlan(ctx, name)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load plan", goerr.V("plan", name))
	}
	if p == nil {
		return nil, goerr.Wrap(ErrPlanNotFound, "no such plan", goerr.V("plan", name))
	}
	return p, nil
}
