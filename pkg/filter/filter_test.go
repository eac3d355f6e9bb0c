package filter_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/placeset/pkg/filter"
	"github.com/m-mizutani/placeset/pkg/model"
)

func feature(id string, props map[string]any) *model.Feature {
	f := model.NewFeature(model.PlaceID(id), 46.67, 24.71)
	for k, v := range props {
		f.Properties.Set(k, v)
	}
	return f
}

func ids(ds *model.Dataset) []model.PlaceID {
	var out []model.PlaceID
	for _, f := range ds.Features {
		out = append(out, f.ID())
	}
	return out
}

func TestValid(t *testing.T) {
	ds := model.NewDataset([]*model.Feature{
		feature("photos", map[string]any{"photos": []any{map[string]any{"name": "p1"}}}),
		feature("no-photos", map[string]any{"photos": []any{}}),
		feature("photos-uri", map[string]any{"googleMapsLinks": map[string]any{"photosUri": "https://example.com/p"}}),
		feature("popular", map[string]any{"popularity_score": 150}),
		feature("unpopular", map[string]any{"popularity_score": 50}),
		feature("reviewed", map[string]any{"user_ratings_total": 12}),
		feature("few-reviews", map[string]any{"user_ratings_total": 3}),
		feature("phone", map[string]any{"phone": "+966 11 000 0000"}),
		feature("string-reviews", map[string]any{"user_ratings_total": "8"}),
	})

	t.Run("without rating info", func(t *testing.T) {
		got := filter.Valid(ds, false)
		gt.Equal(t, ids(got), []model.PlaceID{"photos", "photos-uri", "popular"})
		gt.Equal(t, got.Properties, ds.Properties)
	})

	t.Run("with rating info", func(t *testing.T) {
		got := filter.Valid(ds, true)
		gt.Equal(t, ids(got), []model.PlaceID{"reviewed", "phone", "string-reviews"})
	})

	t.Run("nil dataset", func(t *testing.T) {
		got := filter.Valid(nil, false)
		gt.Equal(t, got.Len(), 0)
	})
}

func TestProject(t *testing.T) {
	ds := model.NewDataset([]*model.Feature{
		feature("a", map[string]any{
			"displayName": "Cafe",
			"rating":      4.2,
			"photos":      []any{"x"},
			"websiteUri":  "https://example.com",
		}),
		feature("b", map[string]any{
			"types":       []any{"cafe"},
			"priceLevel":  "PRICE_LEVEL_MODERATE",
			"businessKey": "dropped",
		}),
	})

	got := filter.Project(ds)
	gt.Equal(t, got.Len(), 2)
	gt.Equal(t, got.Properties, []string{"displayName", "id", "priceLevel", "rating", "types"})

	a := got.Features[0]
	gt.Equal(t, a.ID(), model.PlaceID("a"))
	gt.Equal(t, a.Geometry.Coordinates, []float64{46.67, 24.71})
	_, ok := a.Properties.Get("photos")
	gt.False(t, ok)
	_, ok = a.Properties.Get("websiteUri")
	gt.False(t, ok)
	gt.Equal(t, a.Properties.String("displayName"), "Cafe")

	// the input is not modified
	_, ok = ds.Features[0].Properties.Get("photos")
	gt.True(t, ok)
}

func TestPolicy(t *testing.T) {
	ctx := context.Background()

	t.Run("no policy files", func(t *testing.T) {
		p, err := filter.LoadPolicy(ctx, t.TempDir())
		gt.NoError(t, err)
		gt.Nil(t, p)

		ds := model.NewDataset([]*model.Feature{feature("a", nil)})
		got, err := p.Apply(ctx, ds)
		gt.NoError(t, err)
		gt.Equal(t, got.Len(), 1)
	})

	t.Run("drops rejected features", func(t *testing.T) {
		dir := t.TempDir()
		gt.NoError(t, os.WriteFile(filepath.Join(dir, "keep.rego"), []byte(`package placeset

default keep := true

keep := false if {
	input.properties.business_status == "CLOSED_PERMANENTLY"
}
`), 0644))

		p, err := filter.LoadPolicy(ctx, dir)
		gt.NoError(t, err)
		gt.NotNil(t, p)

		ds := model.NewDataset([]*model.Feature{
			feature("open", map[string]any{"business_status": "OPERATIONAL"}),
			feature("closed", map[string]any{"business_status": "CLOSED_PERMANENTLY"}),
			feature("unknown", nil),
		})
		got, err := p.Apply(ctx, ds)
		gt.NoError(t, err)
		gt.Equal(t, ids(got), []model.PlaceID{"open", "unknown"})
	})

	t.Run("rule can read the id", func(t *testing.T) {
		dir := t.TempDir()
		gt.NoError(t, os.WriteFile(filepath.Join(dir, "keep.rego"), []byte(`package placeset

default keep := false

keep if {
	input.properties.id != "blocked"
}
`), 0644))

		p, err := filter.LoadPolicy(ctx, dir)
		gt.NoError(t, err)

		got, err := p.Apply(ctx, model.NewDataset([]*model.Feature{feature("blocked", nil), feature("ok", nil)}))
		gt.NoError(t, err)
		gt.Equal(t, ids(got), []model.PlaceID{"ok"})
	})

	t.Run("invalid policy", func(t *testing.T) {
		dir := t.TempDir()
		gt.NoError(t, os.WriteFile(filepath.Join(dir, "broken.rego"), []byte("package placeset\nkeep if {"), 0644))
		_, err := filter.LoadPolicy(ctx, dir)
		gt.Error(t, err)
	})
}
