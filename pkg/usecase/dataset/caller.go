package dataset

import (
	"context"
	"errors"
	"maps"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/placeset/pkg/adapter"
	"github.com/m-mizutani/placeset/pkg/model"
	"github.com/m-mizutani/placeset/pkg/utils/logging"
)

// isTransient reports whether a failed attempt may succeed when repeated.
// Provider status errors and transport failures are transient; a payload
// that cannot be interpreted or a cancelled context is not.
func isTransient(err error) bool {
	switch {
	case errors.Is(err, adapter.ErrMalformedPayload),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	default:
		return true
	}
}

func (u *UseCase) pace(ctx context.Context) error {
	if u.minDelay <= 0 {
		return nil
	}
	select {
	case <-u.timer.After(u.minDelay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// attempt runs fn under one bounded attempt budget. The delay after the k-th
// failed attempt is base * 2^k.
func attempt[T any](ctx context.Context, u *UseCase, call string, fn func(context.Context) (T, error)) (T, error) {
	var result T
	err := retry.Do(
		func() error {
			if err := u.pace(ctx); err != nil {
				return retry.Unrecoverable(err)
			}
			u.calls.Add(1)
			v, err := fn(ctx)
			if err != nil {
				if !isTransient(err) {
					return retry.Unrecoverable(err)
				}
				return err
			}
			result = v
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(u.attempts),
		retry.LastErrorOnly(true),
		retry.WithTimer(u.timer),
		retry.DelayType(func(n uint, _ error, _ *retry.Config) time.Duration {
			return u.backoffBase << (n + 1)
		}),
		retry.OnRetry(func(n uint, err error) {
			logging.From(ctx).Warn("provider call failed",
				"call", call, "attempt", n+1, "error", err)
		}),
	)
	return result, err
}

// search runs a provider search on the primary protocol and, once its budget
// is exhausted, on the legacy protocol with a fresh budget. When both are
// exhausted the call resolves to sentinel places instead of an error.
func (u *UseCase) search(ctx context.Context, call string, primary func(context.Context) ([]model.Place, error), legacy *adapter.LegacyRequest) ([]model.Place, error) {
	places, err := attempt(ctx, u, call, primary)
	if err == nil {
		return places, nil
	}
	if !isTransient(err) {
		return nil, goerr.Wrap(err, "provider search failed", goerr.V("call", call))
	}

	logging.From(ctx).Warn("primary protocol exhausted, falling back to legacy",
		"call", call, "error", err)

	places, err = attempt(ctx, u, call+"/legacy", func(ctx context.Context) ([]model.Place, error) {
		return u.places.SearchLegacy(ctx, legacy)
	})
	if err == nil {
		return places, nil
	}
	if !isTransient(err) {
		return nil, goerr.Wrap(err, "legacy search failed", goerr.V("call", call))
	}

	status := 0
	var statusErr *adapter.StatusError
	if errors.As(err, &statusErr) {
		status = statusErr.Code
	}
	logging.From(ctx).Error("legacy protocol exhausted",
		"call", call, "status", status, "error", err)
	return model.NewSentinelPlaces(u.sentinelCount, status), nil
}

func (u *UseCase) searchNearby(ctx context.Context, req *adapter.NearbyRequest) ([]model.Place, error) {
	return u.search(ctx, "nearby", func(ctx context.Context) ([]model.Place, error) {
		return u.places.SearchNearby(ctx, req)
	}, adapter.LegacyFromNearby(req))
}

// searchText runs a text search. With IDsOnly each result is replaced by its
// details, looked up in the details cache first.
func (u *UseCase) searchText(ctx context.Context, req *adapter.TextRequest) ([]model.Place, error) {
	places, err := u.search(ctx, "text", func(ctx context.Context) ([]model.Place, error) {
		return u.places.SearchText(ctx, req)
	}, adapter.LegacyFromText(req))
	if err != nil || !req.IDsOnly {
		return places, err
	}

	for i, p := range places {
		if p.ID() == "" || p.ID() == model.SentinelID {
			continue
		}
		details, err := u.details(ctx, p.ID())
		if err != nil {
			return nil, err
		}
		if details == nil {
			continue
		}
		merged := maps.Clone(details)
		for k, v := range p {
			if _, ok := merged[k]; !ok {
				merged[k] = v
			}
		}
		places[i] = merged
	}
	return places, nil
}

// details returns the details of a place from the cache or the provider. It
// returns nil when the provider could not answer, leaving the caller with the
// search result.
func (u *UseCase) details(ctx context.Context, id model.PlaceID) (model.PlaceDetails, error) {
	cached, err := u.repo.GetPlaceDetails(ctx, id)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load place details", goerr.V("id", id))
	}
	if cached != nil {
		return cached, nil
	}

	details, err := attempt(ctx, u, "details", func(ctx context.Context) (model.PlaceDetails, error) {
		return u.places.GetDetails(ctx, id)
	})
	if err != nil {
		if !isTransient(err) {
			return nil, goerr.Wrap(err, "details lookup failed", goerr.V("id", id))
		}
		logging.From(ctx).Warn("details lookup exhausted, keeping search result",
			"id", id, "error", err)
		return nil, nil
	}

	if details == nil {
		return nil, nil
	}
	if details.ID() == "" {
		details["id"] = string(id)
	}
	if err := u.repo.PutPlaceDetails(ctx, id, details); err != nil {
		return nil, goerr.Wrap(err, "failed to save place details", goerr.V("id", id))
	}
	return details, nil
}
