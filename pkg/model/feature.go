package model

import (
	"encoding/json"
	"maps"
	"slices"

	"github.com/m-mizutani/goerr/v2"
)

// PlaceID is the stable external identifier of a place. Two features with the
// same PlaceID are the same place regardless of the query that produced them.
type PlaceID string

// SentinelID marks placeholder features produced when the provider could not
// be reached. They must never reach a caller.
const SentinelID PlaceID = "n/a"

const (
	featureType    = "Feature"
	pointType      = "Point"
	propertyKeyID  = "id"
	collectionType = "FeatureCollection"
)

// Geometry is a GeoJSON geometry. Only points are produced.
type Geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// Properties is the property bag of a feature. ID is always present; the
// provider specific fields live in Extra.
type Properties struct {
	ID    PlaceID
	Extra map[string]any

	hideID bool
}

// Get returns a property value by key
func (p Properties) Get(key string) (any, bool) {
	if key == propertyKeyID {
		return string(p.ID), p.ID != ""
	}
	v, ok := p.Extra[key]
	return v, ok
}

// Set sets a property value. Setting "id" updates ID.
func (p *Properties) Set(key string, value any) {
	if key == propertyKeyID {
		if s, ok := value.(string); ok {
			p.ID = PlaceID(s)
		}
		return
	}
	if p.Extra == nil {
		p.Extra = make(map[string]any)
	}
	p.Extra[key] = value
}

// String returns a property as string, or empty string if absent or not a string
func (p Properties) String(key string) string {
	v, ok := p.Get(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Keys returns the sorted list of property names, including "id"
func (p Properties) Keys() []string {
	keys := make([]string, 0, len(p.Extra)+1)
	if p.ID != "" {
		keys = append(keys, propertyKeyID)
	}
	for k := range p.Extra {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func (p Properties) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(p.Extra)+1)
	maps.Copy(m, p.Extra)
	if p.ID != "" && !p.hideID {
		m[propertyKeyID] = string(p.ID)
	}
	return json.Marshal(m)
}

func (p *Properties) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return goerr.Wrap(err, "failed to decode feature properties")
	}
	*p = Properties{}
	if raw, ok := m[propertyKeyID]; ok {
		s, ok := raw.(string)
		if !ok {
			return goerr.New("feature id is not a string", goerr.V("id", raw))
		}
		p.ID = PlaceID(s)
		delete(m, propertyKeyID)
	}
	if len(m) > 0 {
		p.Extra = m
	}
	return nil
}

// Feature is a single place record
type Feature struct {
	Type       string     `json:"type"`
	Geometry   Geometry   `json:"geometry"`
	Properties Properties `json:"properties"`
}

// NewFeature creates a point feature
func NewFeature(id PlaceID, lng, lat float64) *Feature {
	return &Feature{
		Type: featureType,
		Geometry: Geometry{
			Type:        pointType,
			Coordinates: []float64{lng, lat},
		},
		Properties: Properties{ID: id},
	}
}

// ID returns the identity of the feature
func (f *Feature) ID() PlaceID {
	return f.Properties.ID
}

// IsSentinel reports whether the feature is a failure placeholder
func (f *Feature) IsSentinel() bool {
	return f.Properties.ID == SentinelID
}

// Clone returns a copy that can be modified without touching the original.
// Nested property values are shared.
func (f *Feature) Clone() *Feature {
	c := *f
	c.Geometry.Coordinates = slices.Clone(f.Geometry.Coordinates)
	c.Properties.Extra = maps.Clone(f.Properties.Extra)
	return &c
}
