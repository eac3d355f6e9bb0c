package query

import (
	"slices"

	"github.com/m-mizutani/placeset/pkg/interfaces"
	"github.com/m-mizutani/placeset/pkg/model"
)

const (
	// DefaultCallCapacity is the number of results one provider call returns
	DefaultCallCapacity = 20
	// DefaultMaxTypesPerCall is the provider limit of included types per call
	DefaultMaxTypesPerCall = 50
)

// Decomposer is the default query decomposition. Category types are packed
// into as few provider calls as their popularity estimates allow; keyword
// phrases get one call each.
type Decomposer struct {
	popularity      *Popularity
	capacity        float64
	maxTypesPerCall int
}

var _ interfaces.Decomposer = (*Decomposer)(nil)

type Option func(*Decomposer)

// WithCallCapacity sets how many results a single call is expected to hold
func WithCallCapacity(n float64) Option {
	return func(d *Decomposer) {
		d.capacity = n
	}
}

// WithMaxTypesPerCall caps the number of included types in one call
func WithMaxTypesPerCall(n int) Option {
	return func(d *Decomposer) {
		d.maxTypesPerCall = n
	}
}

// NewDecomposer creates a decomposer. A nil popularity table treats every
// type as unknown, giving each type its own call.
func NewDecomposer(popularity *Popularity, opts ...Option) *Decomposer {
	d := &Decomposer{
		popularity:      popularity,
		capacity:        DefaultCallCapacity,
		maxTypesPerCall: DefaultMaxTypesPerCall,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Separate splits raw into the clause of bare category types and the clause
// of '@' wrapped keyword phrases. For "(cafe) AND NOT @drive-thru@" it
// returns "(cafe)" and "NOT @drive-thru@".
func (d *Decomposer) Separate(raw string) (string, string, error) {
	c, err := Parse(raw)
	if err != nil {
		return "", "", err
	}
	return c.Filter(model.TermKindCategory).String(), c.Filter(model.TermKindKeyword).String(), nil
}

func (d *Decomposer) estimate(placeType string) float64 {
	if v, ok := d.popularity.Estimate(placeType); ok {
		return v
	}
	return d.capacity
}

type batch struct {
	types []string
	load  float64
}

// CategorySequence packs included types into batches whose summed estimate
// fits one call, most popular first. Every batch excludes all excluded types.
// A clause with exclusions only yields a single tuple without included types.
func (d *Decomposer) CategorySequence(clause string) ([]model.QueryTuple, error) {
	c, err := Parse(clause)
	if err != nil {
		return nil, err
	}
	c = c.Filter(model.TermKindCategory)
	if c.IsEmpty() {
		return nil, nil
	}

	excluded := texts(c.Excluded)
	if len(c.Included) == 0 {
		return []model.QueryTuple{model.NewQueryTuple(nil, excluded)}, nil
	}

	// ties keep alphabetical order so the batches do not depend on how the
	// query was written
	types := texts(c.Included)
	slices.Sort(types)
	slices.SortStableFunc(types, func(a, b string) int {
		ea, eb := d.estimate(a), d.estimate(b)
		switch {
		case ea > eb:
			return -1
		case ea < eb:
			return 1
		default:
			return 0
		}
	})

	var batches []*batch
	for _, t := range types {
		est := d.estimate(t)
		if est >= d.capacity {
			batches = append(batches, &batch{types: []string{t}, load: est})
			continue
		}

		var target *batch
		for _, b := range batches {
			if b.load < d.capacity && b.load+est <= d.capacity && len(b.types) < d.maxTypesPerCall {
				target = b
				break
			}
		}
		if target == nil {
			target = &batch{}
			batches = append(batches, target)
		}
		target.types = append(target.types, t)
		target.load += est
	}

	seq := make([]model.QueryTuple, 0, len(batches))
	for _, b := range batches {
		seq = append(seq, model.NewQueryTuple(b.types, excluded))
	}
	return seq, nil
}

// KeywordSequence returns one tuple per included phrase, each carrying all
// excluded phrases. A clause with exclusions only yields a single tuple
// without included phrases.
func (d *Decomposer) KeywordSequence(clause string) ([]model.QueryTuple, error) {
	c, err := Parse(clause)
	if err != nil {
		return nil, err
	}
	c = c.Filter(model.TermKindKeyword)
	if c.IsEmpty() {
		return nil, nil
	}

	excluded := texts(c.Excluded)
	if len(c.Included) == 0 {
		return []model.QueryTuple{model.NewQueryTuple(nil, excluded)}, nil
	}

	seq := make([]model.QueryTuple, 0, len(c.Included))
	for _, t := range c.Included {
		seq = append(seq, model.NewQueryTuple([]string{t.Text}, excluded))
	}
	return seq, nil
}
