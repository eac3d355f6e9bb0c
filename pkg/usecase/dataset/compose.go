package dataset

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/placeset/pkg/adapter"
	"github.com/m-mizutani/placeset/pkg/model"
	"github.com/m-mizutani/placeset/pkg/utils/logging"
)

// Subtract returns the records of include whose id is not in exclude. A nil
// include yields an empty dataset and a nil exclude leaves include unchanged.
func Subtract(include, exclude *model.Dataset) *model.Dataset {
	if include == nil {
		return model.EmptyDataset()
	}
	if exclude == nil {
		return include
	}

	excluded := exclude.IDs()
	out := &model.Dataset{
		Type:       include.Type,
		Features:   make([]*model.Feature, 0, len(include.Features)),
		Properties: slices.Clone(include.Properties),
	}
	for _, f := range include.Features {
		if _, ok := excluded[f.ID()]; !ok {
			out.Features = append(out.Features, f)
		}
	}
	if out.Properties == nil {
		out.Properties = []string{}
	}
	return out
}

// Union appends the records of every part in order, keeping the first record
// seen for each id. The manifest is the union of the parts' manifests.
func Union(parts ...*model.Dataset) *model.Dataset {
	out := model.EmptyDataset()
	seen := make(map[model.PlaceID]struct{})
	manifest := make(map[string]struct{})
	for _, part := range parts {
		if part == nil {
			continue
		}
		for _, f := range part.Features {
			if _, ok := seen[f.ID()]; ok {
				continue
			}
			seen[f.ID()] = struct{}{}
			out.Features = append(out.Features, f)
		}
		for _, k := range part.Properties {
			manifest[k] = struct{}{}
		}
	}
	for k := range manifest {
		out.Properties = append(out.Properties, k)
	}
	slices.Sort(out.Properties)
	return out
}

// job resolves one atomic or partial term set
type job struct {
	key   model.Fingerprint
	fetch func(ctx context.Context) (*model.Dataset, error)
}

// resolveAll answers every job from the cache or the provider. Missing term
// sets are fetched concurrently and at most once per fingerprint; a failed
// job does not stop the others.
func (u *UseCase) resolveAll(ctx context.Context, jobs []job) (map[model.Fingerprint]*model.Dataset, error) {
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		errs    []error
		results = make(map[model.Fingerprint]*model.Dataset, len(jobs))
	)

	scheduled := make(map[model.Fingerprint]struct{}, len(jobs))
	for _, j := range jobs {
		if _, ok := scheduled[j.key]; ok {
			continue
		}
		scheduled[j.key] = struct{}{}

		wg.Add(1)
		err := u.pool.Submit(func() {
			defer wg.Done()
			ds, err := u.resolve(ctx, j)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			results[j.key] = ds
		})
		if err != nil {
			wg.Done()
			mu.Lock()
			errs = append(errs, goerr.Wrap(err, "failed to schedule fetch", goerr.V("key", j.key)))
			mu.Unlock()
		}
	}
	wg.Wait()

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return results, nil
}

func (u *UseCase) resolve(ctx context.Context, j job) (*model.Dataset, error) {
	v, err, shared := u.group.Do(string(j.key), func() (any, error) {
		cached, err := u.repo.GetDataset(ctx, j.key)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to load dataset", goerr.V("key", j.key))
		}
		if cached != nil {
			logging.From(ctx).Debug("term set cache hit", "key", j.key, "records", cached.Len())
			return cached, nil
		}

		ds, err := j.fetch(ctx)
		if err != nil {
			return nil, err
		}
		if err := u.store(ctx, j.key, ds); err != nil {
			return nil, err
		}
		return ds, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		logging.From(ctx).Debug("joined in-flight fetch", "key", j.key)
	}
	return v.(*model.Dataset), nil
}

// store persists a dataset unless it is empty or carries sentinels, so that
// failed or empty acquisitions are retried on the next request
func (u *UseCase) store(ctx context.Context, key model.Fingerprint, ds *model.Dataset) error {
	switch {
	case ds.HasSentinel():
		logging.From(ctx).Warn("dataset has failed calls, not stored", "key", key)
		return nil
	case ds.Len() == 0:
		return nil
	}

	if err := u.repo.PutDataset(ctx, key, ds); err != nil {
		return goerr.Wrap(err, "failed to save dataset", goerr.V("key", key))
	}
	logging.From(ctx).Debug("dataset stored", "key", key, "records", ds.Len())
	return nil
}

// composeCategory fetches every category tuple as one provider call with
// server side exclusion and unions the results in tuple order
func (u *UseCase) composeCategory(ctx context.Context, req *model.FetchRequest, tuples []model.QueryTuple) (*model.Dataset, error) {
	jobs := make([]job, 0, len(tuples))
	for _, tuple := range tuples {
		if len(tuple.Included) == 0 {
			continue
		}
		jobs = append(jobs, u.categoryJob(req, tuple))
	}

	results, err := u.resolveAll(ctx, jobs)
	if err != nil {
		return nil, err
	}

	parts := make([]*model.Dataset, 0, len(jobs))
	for _, j := range jobs {
		parts = append(parts, results[j.key])
	}
	return Union(parts...), nil
}

// composeKeyword answers every keyword tuple from its cached partial dataset
// or rebuilds it by subtracting the exclude-only dataset from the
// include-only dataset. Atomic term sets shared by several tuples are fetched
// once. A tuple without included terms is empty and costs no call.
func (u *UseCase) composeKeyword(ctx context.Context, req *model.FetchRequest, tuples []model.QueryTuple) (*model.Dataset, error) {
	flags := req.Flags()
	partials := make([]*model.Dataset, len(tuples))

	var (
		missing []int
		jobs    []job
	)
	for i, tuple := range tuples {
		key := model.NewFingerprint(model.TermKindKeyword, req.Geography, tuple, flags)
		cached, err := u.repo.GetDataset(ctx, key)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to load dataset", goerr.V("key", key))
		}
		if cached != nil {
			logging.From(ctx).Debug("partial cache hit", "key", key, "records", cached.Len())
			partials[i] = cached
			continue
		}

		missing = append(missing, i)
		if len(tuple.Included) == 0 {
			continue
		}
		jobs = append(jobs, u.keywordJob(req, tuple.IncludeOnly()))
		if len(tuple.Excluded) > 0 {
			jobs = append(jobs, u.keywordJob(req, tuple.ExcludeOnly()))
		}
	}

	results, err := u.resolveAll(ctx, jobs)
	if err != nil {
		return nil, err
	}

	for _, i := range missing {
		tuple := tuples[i]
		var include, exclude *model.Dataset
		if len(tuple.Included) == 0 {
			partials[i] = model.EmptyDataset()
			continue
		}
		include = results[model.NewFingerprint(model.TermKindKeyword, req.Geography, tuple.IncludeOnly(), flags)]
		if len(tuple.Excluded) > 0 {
			exclude = results[model.NewFingerprint(model.TermKindKeyword, req.Geography, tuple.ExcludeOnly(), flags)]
		}

		partial := Subtract(include, exclude)
		if !exclude.HasSentinel() {
			key := model.NewFingerprint(model.TermKindKeyword, req.Geography, tuple, flags)
			if err := u.store(ctx, key, partial); err != nil {
				return nil, err
			}
		} else {
			partial = markFailed(partial)
		}
		partials[i] = partial
	}

	return Union(partials...), nil
}

// keywordJob fetches an atomic keyword term set, one text search per term
func (u *UseCase) keywordJob(req *model.FetchRequest, tuple model.QueryTuple) job {
	terms := slices.Concat(tuple.Included, tuple.Excluded)
	flags := req.Flags()
	return job{
		key: model.NewFingerprint(model.TermKindKeyword, req.Geography, tuple, flags),
		fetch: func(ctx context.Context) (*model.Dataset, error) {
			parts := make([]*model.Dataset, 0, len(terms))
			for _, term := range terms {
				places, err := u.searchText(ctx, &adapter.TextRequest{
					TextQuery:    term,
					LocationBias: adapter.NewArea(req.Geography),
					IDsOnly:      flags.IDsOnly,
				})
				if err != nil {
					return nil, err
				}
				parts = append(parts, Convert(places))
			}
			return Union(parts...), nil
		},
	}
}

// categoryJob fetches a category term set with one nearby search. Excluded
// types are passed to the provider.
func (u *UseCase) categoryJob(req *model.FetchRequest, tuple model.QueryTuple) job {
	flags := req.Flags()
	nearby := &adapter.NearbyRequest{
		IncludedTypes:       tuple.Included,
		ExcludedTypes:       tuple.Excluded,
		LocationRestriction: adapter.NewArea(req.Geography),
		RatingInfo:          flags.RatingInfo,
	}
	if len(tuple.Included) == 0 {
		// an exclude-only set is answered by searching its types
		nearby.IncludedTypes, nearby.ExcludedTypes = tuple.Excluded, nil
	}
	return job{
		key: model.NewFingerprint(model.TermKindCategory, req.Geography, tuple, flags),
		fetch: func(ctx context.Context) (*model.Dataset, error) {
			places, err := u.searchNearby(ctx, nearby)
			if err != nil {
				return nil, err
			}
			return Convert(places), nil
		},
	}
}

// exclude removes from ds every record matched by the excluded terms of
// kind, fetching their exclude-only term set when it is not cached. This
// applies the exclusions of one flow to the results of the other.
func (u *UseCase) exclude(ctx context.Context, req *model.FetchRequest, ds *model.Dataset, kind model.TermKind, excluded []string) (*model.Dataset, error) {
	if len(excluded) == 0 || ds.WithoutSentinels().Len() == 0 {
		return ds, nil
	}

	tuple := model.NewQueryTuple(nil, excluded)
	var j job
	switch kind {
	case model.TermKindCategory:
		j = u.categoryJob(req, tuple)
	default:
		j = u.keywordJob(req, tuple)
	}

	results, err := u.resolveAll(ctx, []job{j})
	if err != nil {
		return nil, err
	}
	excludeSet := results[j.key]

	out := Subtract(ds, excludeSet)
	if excludeSet.HasSentinel() {
		out = markFailed(out)
	}
	logging.From(ctx).Debug("cross exclusion applied",
		"kind", kind, "excluded", excluded, "before", ds.Len(), "after", out.Len())
	return out, nil
}

// markFailed adds a sentinel so the dataset stays out of the combined cache
func markFailed(ds *model.Dataset) *model.Dataset {
	if ds.HasSentinel() {
		return ds
	}
	return Union(ds, Convert(model.NewSentinelPlaces(1, 0)))
}

// excludedTerms returns the excluded terms shared by a tuple sequence
func excludedTerms(tuples []model.QueryTuple) []string {
	var out []string
	for _, t := range tuples {
		for _, term := range t.Excluded {
			if !slices.Contains(out, term) {
				out = append(out, term)
			}
		}
	}
	return out
}
