package dataset

import (
	"strconv"

	"github.com/m-mizutani/placeset/pkg/model"
)

// keys that hold numeric-looking text which must stay a string
var textKeys = map[string]struct{}{
	"id":                       {},
	"phone":                    {},
	"internationalPhoneNumber": {},
	"nationalPhoneNumber":      {},
}

var aliases = []struct {
	key  string
	from []string
}{
	{key: "address", from: []string{"formattedAddress", "shortFormattedAddress"}},
	{key: "phone", from: []string{"internationalPhoneNumber", "nationalPhoneNumber"}},
	{key: "website", from: []string{"websiteUri"}},
	{key: "rating", from: []string{"rating"}},
	{key: "user_ratings_total", from: []string{"userRatingCount"}},
	{key: "business_status", from: []string{"businessStatus"}},
}

// Convert turns provider places into a dataset of point features. Places
// without identifier or location are dropped, except sentinels.
func Convert(places []model.Place) *model.Dataset {
	features := make([]*model.Feature, 0, len(places))
	for _, p := range places {
		if f := toFeature(p); f != nil {
			features = append(features, f)
		}
	}
	return model.NewDataset(features)
}

func toFeature(p model.Place) *model.Feature {
	id := p.ID()
	lat, lng, ok := p.Location()
	switch {
	case id == "":
		return nil
	case !ok && id != model.SentinelID:
		return nil
	}

	f := model.NewFeature(id, lng, lat)
	for k, v := range p {
		if k == "id" {
			continue
		}
		f.Properties.Set(k, numeric(k, v))
	}

	if name := p.DisplayName(); name != "" {
		f.Properties.Set("name", name)
	}
	for _, alias := range aliases {
		for _, from := range alias.from {
			if v, ok := f.Properties.Get(from); ok && v != nil && v != "" {
				f.Properties.Set(alias.key, v)
				break
			}
		}
	}
	return f
}

// numeric converts integer strings to int, descending into maps and slices
func numeric(key string, v any) any {
	if _, ok := textKeys[key]; ok {
		return v
	}

	switch x := v.(type) {
	case string:
		if n, err := strconv.Atoi(x); err == nil {
			return n
		}
		return x
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = numeric(k, item)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = numeric(key, item)
		}
		return out
	default:
		return v
	}
}
