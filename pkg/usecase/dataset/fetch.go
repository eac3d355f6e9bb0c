package dataset

import (
	"context"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/placeset/pkg/filter"
	"github.com/m-mizutani/placeset/pkg/model"
	"github.com/m-mizutani/placeset/pkg/utils/logging"
)

// Fetch runs one acquisition. In sample mode the request is answered once; in
// full data mode the coverage plan of the request is advanced until a step
// yields features or the plan is exhausted.
func (u *UseCase) Fetch(ctx context.Context, req *model.FetchRequest) (*model.FetchResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx = logging.WithAttrs(ctx, "run_id", uuid.NewString(), "action", req.Action)

	if req.Action == model.ActionFullData {
		return u.cover(ctx, req)
	}

	ds, key, err := u.acquire(ctx, req)
	if err != nil {
		return nil, err
	}
	result := u.result(req, ds.WithoutSentinels(), key)
	// a sample is step 0 of an implicit single-step plan
	result.NextPlanIndex = 1
	return result, nil
}

// acquire answers a request from the combined cache or by composing the
// category and keyword flows. Exclusions of each flow also apply to the
// records of the other, so "(cafe) AND NOT @drive-thru@" drops cafes found
// by a drive-thru text search.
func (u *UseCase) acquire(ctx context.Context, req *model.FetchRequest) (*model.Dataset, model.Fingerprint, error) {
	logger := logging.From(ctx)

	category, keyword, err := u.decomposer.Separate(req.BooleanQuery)
	if err != nil {
		return nil, "", goerr.Wrap(err, "failed to separate query", goerr.V("query", req.BooleanQuery))
	}

	var categoryTuples, keywordTuples []model.QueryTuple
	if req.SearchType.UsesCategory() && category != "" {
		if categoryTuples, err = u.decomposer.CategorySequence(category); err != nil {
			return nil, "", goerr.Wrap(err, "failed to decompose category clause", goerr.V("clause", category))
		}
	}
	if req.SearchType.UsesKeyword() && keyword != "" {
		if keywordTuples, err = u.decomposer.KeywordSequence(keyword); err != nil {
			return nil, "", goerr.Wrap(err, "failed to decompose keyword clause", goerr.V("clause", keyword))
		}
	}

	key := model.NewCombinedFingerprint(req, categoryTuples, keywordTuples)
	cached, err := u.repo.GetDataset(ctx, key)
	if err != nil {
		return nil, "", goerr.Wrap(err, "failed to load dataset", goerr.V("key", key))
	}
	if cached != nil {
		logger.Info("combined cache hit", "key", key, "records", cached.Len())
		return cached, key, nil
	}

	var parts []*model.Dataset
	if len(categoryTuples) > 0 {
		ds, err := u.composeCategory(ctx, req, categoryTuples)
		if err != nil {
			return nil, "", err
		}
		if ds, err = u.exclude(ctx, req, ds, model.TermKindKeyword, excludedTerms(keywordTuples)); err != nil {
			return nil, "", err
		}
		parts = append(parts, ds)
	}
	if len(keywordTuples) > 0 {
		ds, err := u.composeKeyword(ctx, req, keywordTuples)
		if err != nil {
			return nil, "", err
		}
		if ds, err = u.exclude(ctx, req, ds, model.TermKindCategory, excludedTerms(categoryTuples)); err != nil {
			return nil, "", err
		}
		parts = append(parts, ds)
	}

	combined := Union(parts...)
	if combined.WithoutSentinels().Len() == 0 {
		logger.Warn("acquisition produced no features",
			"query", req.BooleanQuery, "geography", req.Geography, "search_type", req.SearchType)
		return combined, key, nil
	}
	if err := u.store(ctx, key, combined); err != nil {
		return nil, "", err
	}

	logger.Info("dataset acquired", "key", key, "records", combined.Len())
	return combined, key, nil
}

// cover runs the coverage loop over the plan of a full data request. Empty
// steps are rectified until a step yields features, the plan is exhausted or
// the iteration bound is hit. A step with fewer features than the threshold
// is rectified once so its finer circles are skipped, and its data is kept.
func (u *UseCase) cover(ctx context.Context, req *model.FetchRequest) (*model.FetchResult, error) {
	logger := logging.From(ctx)

	cursor, err := u.planner.Build(ctx, req)
	if err != nil {
		return nil, err
	}

	var (
		ds        *model.Dataset
		key       model.Fingerprint
		nextIndex = -1
		nextToken = cursor.NextPageToken
	)
	for iteration := 1; ; iteration++ {
		ds, key, err = u.acquire(ctx, cursor.Request)
		if err != nil {
			return nil, err
		}
		ds = ds.WithoutSentinels()
		logger.Debug("plan step acquired",
			"plan", cursor.PlanName, "index", cursor.Index, "records", ds.Len(), "iteration", iteration)

		if ds.Len() >= u.threshold {
			break
		}

		if ds.Len() == 0 && iteration >= u.maxIterations {
			logger.Warn("coverage loop reached its iteration bound",
				"plan", cursor.PlanName, "index", cursor.Index, "iterations", iteration)
			break
		}

		next, token, err := u.planner.Rectify(ctx, cursor.PlanName, cursor.Index)
		if err != nil {
			return nil, err
		}
		nextIndex, nextToken = next, token
		if ds.Len() > 0 || next < 0 {
			break
		}

		continued := *req
		continued.PageToken = token
		if cursor, err = u.planner.Build(ctx, &continued); err != nil {
			return nil, err
		}
		nextToken = cursor.NextPageToken
	}

	if err := u.planner.MarkResult(ctx, cursor.PlanName, cursor.Index, ds.Len() > 0); err != nil {
		return nil, err
	}

	ds = filter.Valid(ds, req.IncludeRatingInfo)
	if ds, err = u.policy.Apply(ctx, ds); err != nil {
		return nil, err
	}

	result := u.result(req, ds, key)
	result.PlanName = cursor.PlanName
	result.NextPageToken = nextToken
	result.NextPlanIndex = max(nextIndex, cursor.Index+1)

	logger.Info("plan step resolved",
		"plan", cursor.PlanName,
		"index", cursor.Index,
		"records", result.RecordsCount,
		"next_index", result.NextPlanIndex)
	return result, nil
}

func (u *UseCase) result(req *model.FetchRequest, ds *model.Dataset, key model.Fingerprint) *model.FetchResult {
	if req.IncludeOnlySubProperties {
		ds = filter.Project(ds)
	}
	if req.IDsAndLocationOnly {
		ds = ds.HideIDs()
	}
	return &model.FetchResult{
		Dataset:      ds,
		DatasetKey:   key,
		RecordsCount: ds.Len(),
	}
}
