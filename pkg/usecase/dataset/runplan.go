package dataset

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/placeset/pkg/model"
	"github.com/m-mizutani/placeset/pkg/utils/logging"
)

// RunPlan drives a full data acquisition through its whole plan by chaining
// continuation tokens. It stops when the plan is exhausted or when maxCalls
// provider calls were issued (zero means no limit). Progress is persisted
// after every step and passed to onProgress when it is not nil.
func (u *UseCase) RunPlan(ctx context.Context, req *model.FetchRequest, maxCalls int, onProgress func(*model.PlanProgress)) (*model.PlanProgress, error) {
	logger := logging.From(ctx)
	start := u.Calls()

	current := *req
	current.Action = model.ActionFullData

	var progress *model.PlanProgress
	for {
		if err := ctx.Err(); err != nil {
			return progress, goerr.Wrap(err, "plan run interrupted")
		}

		result, err := u.Fetch(ctx, &current)
		if err != nil {
			return progress, err
		}

		p, err := u.repo.GetPlan(ctx, result.PlanName)
		if err != nil {
			return progress, goerr.Wrap(err, "failed to load plan", goerr.V("plan", result.PlanName))
		}
		if p == nil || len(p.Steps) == 0 {
			return progress, goerr.New("plan disappeared during run", goerr.V("plan", result.PlanName))
		}

		progress = &model.PlanProgress{
			Name:      result.PlanName,
			Progress:  min(result.NextPlanIndex*100/len(p.Steps), 99),
			APICalls:  int(u.Calls() - start),
			UpdatedAt: u.now(),
		}
		done := result.NextPageToken == ""
		if done {
			completed := progress.UpdatedAt
			progress.Progress = 100
			progress.CompletedAt = &completed
		}

		if err := u.repo.PutPlanProgress(ctx, progress); err != nil {
			return progress, goerr.Wrap(err, "failed to save plan progress", goerr.V("plan", progress.Name))
		}
		if onProgress != nil {
			onProgress(progress)
		}

		if done {
			logger.Info("plan completed", "plan", progress.Name, "api_calls", progress.APICalls)
			return progress, nil
		}
		if maxCalls > 0 && progress.APICalls >= maxCalls {
			logger.Warn("plan run stopped at call budget",
				"plan", progress.Name, "progress", progress.Progress, "api_calls", progress.APICalls)
			return progress, nil
		}

		current.PageToken = result.NextPageToken
	}
}
