package filter

import (
	"slices"
	"strconv"

	"github.com/m-mizutani/placeset/pkg/model"
)

const (
	// MinRatingsCount is the review count a place must exceed to be valid
	// when rating information was requested
	MinRatingsCount = 3
	// MinPopularityScore is the score a place without photos must exceed
	MinPopularityScore = 100
)

// SubProperties is the allow-list kept by Project
var SubProperties = []string{
	"displayName",
	"rating",
	"formattedAddress",
	"internationalPhoneNumber",
	"types",
	"priceLevel",
	"primaryType",
	"userRatingCount",
	"location",
	"name",
	"id",
}

// Valid keeps the features that look like real, visited places. With
// ratingInfo a feature needs more than MinRatingsCount reviews or a phone
// number; otherwise it needs a photo or a popularity score above
// MinPopularityScore.
func Valid(ds *model.Dataset, ratingInfo bool) *model.Dataset {
	if ds == nil {
		return model.EmptyDataset()
	}

	kept := make([]*model.Feature, 0, len(ds.Features))
	for _, f := range ds.Features {
		if isValid(f.Properties, ratingInfo) {
			kept = append(kept, f)
		}
	}
	return &model.Dataset{
		Type:       ds.Type,
		Features:   kept,
		Properties: ds.Properties,
	}
}

func isValid(p model.Properties, ratingInfo bool) bool {
	if ratingInfo {
		count, _ := p.Get("user_ratings_total")
		if toInt(count) > MinRatingsCount {
			return true
		}
		return p.String("phone") != ""
	}

	if photos, ok := p.Get("photos"); ok && !isEmpty(photos) {
		return true
	}
	if links, ok := p.Get("googleMapsLinks"); ok {
		if m, ok := links.(map[string]any); ok && !isEmpty(m["photosUri"]) {
			return true
		}
	}
	score, _ := p.Get("popularity_score")
	return toInt(score) > MinPopularityScore
}

// Project rebuilds every feature with its geometry and only the SubProperties
// keys
func Project(ds *model.Dataset) *model.Dataset {
	if ds == nil {
		return model.EmptyDataset()
	}

	features := make([]*model.Feature, 0, len(ds.Features))
	for _, f := range ds.Features {
		projected := model.NewFeature(f.ID(), 0, 0)
		projected.Type = f.Type
		projected.Geometry.Type = f.Geometry.Type
		projected.Geometry.Coordinates = slices.Clone(f.Geometry.Coordinates)
		for _, key := range SubProperties {
			if v, ok := f.Properties.Get(key); ok {
				projected.Properties.Set(key, v)
			}
		}
		features = append(features, projected)
	}

	var manifest []string
	for _, key := range SubProperties {
		for _, f := range features {
			if _, ok := f.Properties.Get(key); ok {
				manifest = append(manifest, key)
				break
			}
		}
	}
	return &model.Dataset{Type: ds.Type, Features: features, Properties: sortedOrEmpty(manifest)}
}

func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case []any:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	default:
		return false
	}
}

func toInt(v any) int {
	switch x := v.(type) {
	case int:
		return x
	case int64:
		return int(x)
	case float64:
		return int(x)
	case string:
		n, err := strconv.Atoi(x)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

func sortedOrEmpty(keys []string) []string {
	if len(keys) == 0 {
		return []string{}
	}
	slices.Sort(keys)
	return keys
}
