package plan_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/placeset/pkg/model"
	"github.com/m-mizutani/placeset/pkg/repository"
	"github.com/m-mizutani/placeset/pkg/usecase/plan"
)

func newRequest() *model.FetchRequest {
	return &model.FetchRequest{
		Geography:    model.Geography{Lat: 24.71, Lng: 46.67, Radius: 8000},
		BooleanQuery: "(cafe)  OR @coffee shop@",
		Action:       model.ActionFullData,
		CountryName:  "Saudi Arabia",
		CityName:     "Riyadh",
	}
}

func TestToken(t *testing.T) {
	name := plan.Name(newRequest())
	gt.Equal(t, name, "plan_(cafe)_OR_@coffee_shop@_Saudi Arabia_Riyadh")

	gt.Equal(t, plan.Token(name, 0), "")
	token := plan.Token(name, 7)
	gt.Equal(t, token, "page_token=plan_(cafe)_OR_@coffee_shop@_Saudi Arabia_Riyadh@#$7")

	parsedName, index, err := plan.ParseToken(token)
	gt.NoError(t, err)
	gt.Equal(t, parsedName, name)
	gt.Equal(t, index, 7)

	for _, invalid := range []string{
		"",
		"plan_x@#$1",
		"page_token=plan_x",
		"page_token=other_x@#$1",
		"page_token=plan_x@#$abc",
		"page_token=plan_x@#$-1",
	} {
		_, _, err := plan.ParseToken(invalid)
		gt.Error(t, err)
		gt.True(t, errors.Is(err, plan.ErrInvalidToken))
	}
}

func TestTiles(t *testing.T) {
	root := model.Geography{Lat: 24.71, Lng: 46.67, Radius: 8000}

	gt.A(t, plan.Tiles(root, 1)).Length(1)
	gt.A(t, plan.Tiles(root, 2)).Length(5)

	tiles := plan.Tiles(root, 3)
	gt.A(t, tiles).Length(21)
	gt.Equal(t, tiles[0].Circle, "1")
	gt.Equal(t, tiles[0].Geography, root)
	gt.Equal(t, tiles[1].Circle, "1.1")
	gt.Equal(t, tiles[4].Circle, "1.4")
	gt.Equal(t, tiles[5].Circle, "1.1.1")
	gt.Equal(t, tiles[20].Circle, "1.4.4")

	// first quadrant is north east of the parent with radius r/√2
	ne := tiles[1].Geography
	gt.True(t, ne.Lat > root.Lat)
	gt.True(t, ne.Lng > root.Lng)
	gt.True(t, math.Abs(ne.Radius-root.Radius/math.Sqrt2) < 1e-9)
	gt.True(t, math.Abs(tiles[5].Geography.Radius-root.Radius/2) < 1e-9)

	sw := tiles[3].Geography
	gt.True(t, sw.Lat < root.Lat)
	gt.True(t, sw.Lng < root.Lng)
}

func TestBuild(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	repo := repository.NewMemory()
	uc := plan.New(repo, plan.WithDepth(2), plan.WithClock(func() time.Time { return now }))

	t.Run("creates the plan on first request", func(t *testing.T) {
		req := newRequest()
		cursor, err := uc.Build(ctx, req)
		gt.NoError(t, err)
		gt.Equal(t, cursor.PlanName, plan.Name(req))
		gt.Equal(t, cursor.Index, 0)
		gt.Equal(t, cursor.Request.Geography, req.Geography)
		gt.Equal(t, cursor.Request.PageToken, "")
		gt.Equal(t, cursor.NextPageToken, plan.Token(cursor.PlanName, 1))

		// the caller's request is left untouched
		gt.Equal(t, req.PageToken, "")

		p, err := uc.Get(ctx, cursor.PlanName)
		gt.NoError(t, err)
		gt.A(t, p.Steps).Length(5)
		gt.True(t, p.CreatedAt.Equal(now))
		for _, s := range p.Steps {
			gt.Equal(t, s.Status, model.StepStatusPending)
		}
	})

	t.Run("follows a continuation token", func(t *testing.T) {
		req := newRequest()
		req.PageToken = plan.Token(plan.Name(req), 2)

		cursor, err := uc.Build(ctx, req)
		gt.NoError(t, err)
		gt.Equal(t, cursor.Index, 2)
		gt.Equal(t, cursor.Request.Geography, plan.Tiles(req.Geography, 2)[2].Geography)
		gt.Equal(t, cursor.NextPageToken, plan.Token(cursor.PlanName, 3))
	})

	t.Run("last step has no next token", func(t *testing.T) {
		req := newRequest()
		req.PageToken = plan.Token(plan.Name(req), 4)

		cursor, err := uc.Build(ctx, req)
		gt.NoError(t, err)
		gt.Equal(t, cursor.NextPageToken, "")
	})

	t.Run("token outside the plan", func(t *testing.T) {
		req := newRequest()
		req.PageToken = plan.Token(plan.Name(req), 99)

		_, err := uc.Build(ctx, req)
		gt.Error(t, err)
		gt.True(t, errors.Is(err, plan.ErrInvalidToken))
	})

	t.Run("unknown plan", func(t *testing.T) {
		req := newRequest()
		req.PageToken = "page_token=plan_unknown@#$1"

		_, err := uc.Build(ctx, req)
		gt.Error(t, err)
		gt.True(t, errors.Is(err, plan.ErrPlanNotFound))
	})
}

func putFlatPlan(t *testing.T, repo repository.Repository, name string, n int) {
	steps := make([]*model.PlanStep, n)
	for i := range steps {
		steps[i] = &model.PlanStep{
			Index:     i,
			Circle:    string(rune('1' + i)),
			Geography: model.Geography{Lat: float64(i), Lng: float64(i), Radius: 1000},
			Query:     "cafe",
			Token:     plan.Token(name, i),
			Status:    model.StepStatusPending,
		}
	}
	gt.NoError(t, repo.PutPlan(context.Background(), &model.Plan{Name: name, Steps: steps}))
}

func TestRectify(t *testing.T) {
	ctx := context.Background()

	t.Run("advances to the next pending step", func(t *testing.T) {
		repo := repository.NewMemory()
		uc := plan.New(repo)
		putFlatPlan(t, repo, "plan_flat", 3)

		next, token, err := uc.Rectify(ctx, "plan_flat", 0)
		gt.NoError(t, err)
		gt.Equal(t, next, 1)
		gt.Equal(t, token, plan.Token("plan_flat", 1))

		next, token, err = uc.Rectify(ctx, "plan_flat", 1)
		gt.NoError(t, err)
		gt.Equal(t, next, 2)
		gt.Equal(t, token, plan.Token("plan_flat", 2))

		next, token, err = uc.Rectify(ctx, "plan_flat", 2)
		gt.NoError(t, err)
		gt.Equal(t, next, -1)
		gt.Equal(t, token, "")

		p, err := uc.Get(ctx, "plan_flat")
		gt.NoError(t, err)
		for _, s := range p.Steps {
			gt.Equal(t, s.Status, model.StepStatusSkipped)
		}
	})

	t.Run("skips the circles inside the rectified one", func(t *testing.T) {
		repo := repository.NewMemory()
		uc := plan.New(repo, plan.WithDepth(3))
		cursor, err := uc.Build(ctx, newRequest())
		gt.NoError(t, err)

		// 1.1 is index 1, its children 1.1.1..1.1.4 are indexes 5..8
		next, _, err := uc.Rectify(ctx, cursor.PlanName, 1)
		gt.NoError(t, err)
		gt.Equal(t, next, 2)

		p, err := uc.Get(ctx, cursor.PlanName)
		gt.NoError(t, err)
		for i, s := range p.Steps {
			switch {
			case i == 1, i >= 5 && i <= 8:
				gt.Equal(t, s.Status, model.StepStatusSkipped)
			default:
				gt.Equal(t, s.Status, model.StepStatusPending)
			}
		}

		// rectifying the root leaves nothing to do
		next, token, err := uc.Rectify(ctx, cursor.PlanName, 0)
		gt.NoError(t, err)
		gt.Equal(t, next, -1)
		gt.Equal(t, token, "")
	})

	t.Run("resolved steps are kept", func(t *testing.T) {
		repo := repository.NewMemory()
		uc := plan.New(repo)
		putFlatPlan(t, repo, "plan_resolved", 3)
		gt.NoError(t, uc.MarkResult(ctx, "plan_resolved", 1, true))

		next, _, err := uc.Rectify(ctx, "plan_resolved", 0)
		gt.NoError(t, err)
		gt.Equal(t, next, 2)
	})

	t.Run("unknown plan", func(t *testing.T) {
		uc := plan.New(repository.NewMemory())
		_, _, err := uc.Rectify(ctx, "plan_missing", 0)
		gt.True(t, errors.Is(err, plan.ErrPlanNotFound))
	})
}

func TestMarkResult(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory()
	uc := plan.New(repo)
	putFlatPlan(t, repo, "plan_mark", 2)

	gt.NoError(t, uc.MarkResult(ctx, "plan_mark", 0, true))
	gt.NoError(t, uc.MarkResult(ctx, "plan_mark", 1, false))
	gt.Error(t, uc.MarkResult(ctx, "plan_mark", 2, true))

	p, err := uc.Get(ctx, "plan_mark")
	gt.NoError(t, err)
	gt.Equal(t, p.Steps[0].Status, model.StepStatusSuccess)
	gt.Equal(t, p.Steps[1].Status, model.StepStatusFailed)
}
