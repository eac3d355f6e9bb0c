package model

import (
	"encoding/json"
	"slices"

	"github.com/m-mizutani/goerr/v2"
)

// Dataset is a GeoJSON feature collection with a property-name manifest.
// No two features in a Dataset share an ID.
type Dataset struct {
	Type       string     `json:"type"`
	Features   []*Feature `json:"features"`
	Properties []string   `json:"properties"`
}

// NewDataset builds a dataset from features. Features with an ID already
// seen are dropped (first occurrence wins) and the manifest is derived from
// the remaining features.
func NewDataset(features []*Feature) *Dataset {
	ds := &Dataset{
		Type:       collectionType,
		Features:   make([]*Feature, 0, len(features)),
		Properties: []string{},
	}
	seen := make(map[PlaceID]struct{}, len(features))
	manifest := make(map[string]struct{})
	for _, f := range features {
		if _, ok := seen[f.ID()]; ok {
			continue
		}
		seen[f.ID()] = struct{}{}
		ds.Features = append(ds.Features, f)
		for _, k := range f.Properties.Keys() {
			manifest[k] = struct{}{}
		}
	}
	for k := range manifest {
		ds.Properties = append(ds.Properties, k)
	}
	slices.Sort(ds.Properties)
	return ds
}

// EmptyDataset returns a well-formed collection without features
func EmptyDataset() *Dataset {
	return NewDataset(nil)
}

// Len returns the number of features. A nil dataset has none.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Features)
}

// IDs returns the identity set of the dataset
func (d *Dataset) IDs() map[PlaceID]struct{} {
	ids := make(map[PlaceID]struct{}, d.Len())
	if d == nil {
		return ids
	}
	for _, f := range d.Features {
		ids[f.ID()] = struct{}{}
	}
	return ids
}

// WithoutSentinels returns a dataset without failure placeholders. The
// features themselves are shared with the receiver.
func (d *Dataset) WithoutSentinels() *Dataset {
	if d == nil {
		return EmptyDataset()
	}
	out := &Dataset{
		Type:       collectionType,
		Features:   make([]*Feature, 0, len(d.Features)),
		Properties: slices.Clone(d.Properties),
	}
	if out.Properties == nil {
		out.Properties = []string{}
	}
	for _, f := range d.Features {
		if !f.IsSentinel() {
			out.Features = append(out.Features, f)
		}
	}
	return out
}

// HasSentinel reports whether any failure placeholder is in the dataset
func (d *Dataset) HasSentinel() bool {
	if d == nil {
		return false
	}
	return slices.ContainsFunc(d.Features, (*Feature).IsSentinel)
}

// Clone returns a copy whose features can be modified independently
func (d *Dataset) Clone() *Dataset {
	if d == nil {
		return nil
	}
	out := &Dataset{
		Type:       d.Type,
		Features:   make([]*Feature, len(d.Features)),
		Properties: slices.Clone(d.Properties),
	}
	for i, f := range d.Features {
		out.Features[i] = f.Clone()
	}
	return out
}

// HideIDs returns a copy in which the "id" property is left out of the
// serialized output. Identity is still available through Feature.ID.
func (d *Dataset) HideIDs() *Dataset {
	out := d.Clone()
	if out == nil {
		return nil
	}
	for _, f := range out.Features {
		f.Properties.hideID = true
	}
	out.Properties = slices.DeleteFunc(out.Properties, func(k string) bool {
		return k == propertyKeyID
	})
	return out
}

// Marshal encodes the dataset as JSON
func (d *Dataset) Marshal() ([]byte, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to encode dataset")
	}
	return raw, nil
}

// UnmarshalDataset decodes a dataset encoded by Marshal
func UnmarshalDataset(raw []byte) (*Dataset, error) {
	var ds Dataset
	if err := json.Unmarshal(raw, &ds); err != nil {
		return nil, goerr.Wrap(err, "failed to decode dataset")
	}
	if ds.Type == "" {
		ds.Type = collectionType
	}
	if ds.Features == nil {
		ds.Features = []*Feature{}
	}
	if ds.Properties == nil {
		ds.Properties = []string{}
	}
	return &ds, nil
}
