package plan

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/placeset/pkg/model"
	"github.com/m-mizutani/placeset/pkg/utils/logging"
)

// Rectify marks the step skipped along with every pending step inside its
// circle, then returns the first pending step after it. It returns -1 and an
// empty token when no such step exists.
func (u *UseCase) Rectify(ctx context.Context, planName string, index int) (int, string, error) {
	p, err := u.Get(ctx, planName)
	if err != nil {
		return -1, "", err
	}
	step, err := p.Step(index)
	if err != nil {
		return -1, "", err
	}

	step.Status = model.StepStatusSkipped
	skipped := 1
	for _, s := range p.Steps {
		if s.IsPending() && s.Descends(step.Circle) {
			s.Status = model.StepStatusSkipped
			skipped++
		}
	}

	next, token := -1, ""
	for _, s := range p.Steps[index+1:] {
		if s.IsPending() {
			next, token = s.Index, s.Token
			break
		}
	}

	p.UpdatedAt = u.now()
	if err := u.repo.PutPlan(ctx, p); err != nil {
		return -1, "", goerr.Wrap(err, "failed to save plan", goerr.V("plan", planName))
	}

	logging.From(ctx).Info("plan step rectified",
		"plan", planName, "index", index, "circle", step.Circle, "skipped", skipped, "next", next)
	return next, token, nil
}

// MarkResult records the outcome of the step that was finally used
func (u *UseCase) MarkResult(ctx context.Context, planName string, index int, hasFeatures bool) error {
	p, err := u.Get(ctx, planName)
	if err != nil {
		return err
	}
	step, err := p.Step(index)
	if err != nil {
		return err
	}

	if hasFeatures {
		step.Status = model.StepStatusSuccess
	} else {
		step.Status = model.StepStatusFailed
	}
	p.UpdatedAt = u.now()

	if err := u.repo.PutPlan(ctx, p); err != nil {
		return goerr.Wrap(err, "failed to save plan", goerr.V("plan", planName))
	}
	return nil
}
