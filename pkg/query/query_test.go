package query_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/placeset/pkg/model"
	"github.com/m-mizutani/placeset/pkg/query"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		included []string
		excluded []string
		wantErr  bool
	}{
		{
			name:     "single category",
			input:    "cafe",
			included: []string{"cafe"},
		},
		{
			name:     "mixed disjunction with exclusion",
			input:    "(auto_parts_store OR @auto parts@ OR @car repair@) AND NOT @tire shop@",
			included: []string{"auto_parts_store", "@auto parts@", "@car repair@"},
			excluded: []string{"@tire shop@"},
		},
		{
			name:     "negated group",
			input:    "(cafe OR bakery) AND NOT (bar OR @night club@)",
			included: []string{"cafe", "bakery"},
			excluded: []string{"bar", "@night club@"},
		},
		{
			name:     "double negation",
			input:    "NOT NOT cafe",
			included: []string{"cafe"},
		},
		{
			name:     "phrase whitespace is collapsed",
			input:    "@  coffee   shop @",
			included: []string{"@coffee shop@"},
		},
		{
			name:     "duplicates removed",
			input:    "cafe OR cafe OR @cafe@",
			included: []string{"cafe", "@cafe@"},
		},
		{name: "unterminated phrase", input: "@coffee", wantErr: true},
		{name: "missing paren", input: "(cafe OR bar", wantErr: true},
		{name: "dangling operator", input: "cafe AND", wantErr: true},
		{name: "positive conjunction", input: "cafe AND bar", wantErr: true},
		{name: "negation in disjunction", input: "cafe OR NOT bar", wantErr: true},
		{name: "negated conjunction", input: "NOT (cafe AND NOT bar)", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c, err := query.Parse(tc.input)
			if tc.wantErr {
				gt.Error(t, err)
				gt.True(t, errors.Is(err, query.ErrInvalidQuery))
				return
			}
			gt.NoError(t, err)

			var included, excluded []string
			for _, term := range c.Included {
				included = append(included, term.String())
			}
			for _, term := range c.Excluded {
				excluded = append(excluded, term.String())
			}
			gt.Equal(t, included, tc.included)
			gt.Equal(t, excluded, tc.excluded)
		})
	}
}

func TestClauseString(t *testing.T) {
	c, err := query.Parse("(cafe OR @coffee shop@) AND NOT bar AND NOT @drive-thru@")
	gt.NoError(t, err)
	gt.Equal(t, c.String(), "(cafe OR @coffee shop@) AND NOT bar AND NOT @drive-thru@")

	again, err := query.Parse(c.String())
	gt.NoError(t, err)
	gt.Equal(t, again, c)
}

func TestSeparate(t *testing.T) {
	d := query.NewDecomposer(nil)

	t.Run("category and exclusion phrase", func(t *testing.T) {
		cat, kw, err := d.Separate("(cafe) AND NOT @drive-thru@")
		gt.NoError(t, err)
		gt.Equal(t, cat, "(cafe)")
		gt.Equal(t, kw, "NOT @drive-thru@")
	})

	t.Run("mixed disjunction", func(t *testing.T) {
		cat, kw, err := d.Separate("(auto_parts_store OR @auto parts@ OR @car repair@) AND NOT @tire shop@")
		gt.NoError(t, err)
		gt.Equal(t, cat, "(auto_parts_store)")
		gt.Equal(t, kw, "(@auto parts@ OR @car repair@) AND NOT @tire shop@")
	})

	t.Run("keyword only", func(t *testing.T) {
		cat, kw, err := d.Separate("@bakery@")
		gt.NoError(t, err)
		gt.Equal(t, cat, "")
		gt.Equal(t, kw, "(@bakery@)")
	})

	t.Run("invalid", func(t *testing.T) {
		_, _, err := d.Separate("(cafe")
		gt.Error(t, err)
	})
}

func TestCategorySequence(t *testing.T) {
	popularity := query.NewPopularity(map[string]float64{
		"restaurant":  60,
		"cafe":        12,
		"bakery":      6,
		"tea_house":   3,
		"juice_shop":  2,
		"ice_cream":   9,
		"donut_store": 1,
	})
	d := query.NewDecomposer(popularity)

	t.Run("packs rare types and isolates popular ones", func(t *testing.T) {
		seq, err := d.CategorySequence("(juice_shop OR restaurant OR bakery OR cafe OR ice_cream OR tea_house OR donut_store) AND NOT bar")
		gt.NoError(t, err)
		gt.A(t, seq).Length(3)

		gt.Equal(t, seq[0].Included, []string{"restaurant"})
		gt.Equal(t, seq[1].Included, []string{"cafe", "bakery", "juice_shop"})
		gt.Equal(t, seq[2].Included, []string{"ice_cream", "tea_house", "donut_store"})
		for _, tuple := range seq {
			gt.Equal(t, tuple.Excluded, []string{"bar"})
		}
	})

	t.Run("unknown types get their own call", func(t *testing.T) {
		seq, err := d.CategorySequence("(mystery_type OR donut_store)")
		gt.NoError(t, err)
		gt.A(t, seq).Length(2)
		gt.Equal(t, seq[0].Included, []string{"mystery_type"})
		gt.Equal(t, seq[1].Included, []string{"donut_store"})
	})

	t.Run("types per call are capped", func(t *testing.T) {
		capped := query.NewDecomposer(popularity, query.WithMaxTypesPerCall(2))
		seq, err := capped.CategorySequence("(tea_house OR juice_shop OR donut_store)")
		gt.NoError(t, err)
		gt.A(t, seq).Length(2)
		gt.A(t, seq[0].Included).Length(2)
	})

	t.Run("exclusion only", func(t *testing.T) {
		seq, err := d.CategorySequence("NOT bar")
		gt.NoError(t, err)
		gt.A(t, seq).Length(1)
		gt.A(t, seq[0].Included).Length(0)
		gt.Equal(t, seq[0].Excluded, []string{"bar"})

		seq, err = d.CategorySequence("")
		gt.NoError(t, err)
		gt.A(t, seq).Length(0)
	})

	t.Run("term order does not change batches", func(t *testing.T) {
		even := query.NewDecomposer(query.NewPopularity(map[string]float64{
			"cafe": 15, "bakery": 5, "tea_house": 5,
		}))
		a, err := even.CategorySequence("tea_house OR cafe OR bakery")
		gt.NoError(t, err)
		b, err := even.CategorySequence("bakery OR tea_house OR cafe")
		gt.NoError(t, err)
		gt.Equal(t, a, b)
		gt.Equal(t, a[0].Included, []string{"cafe", "bakery"})
		gt.Equal(t, a[1].Included, []string{"tea_house"})
	})
}

func TestKeywordSequence(t *testing.T) {
	d := query.NewDecomposer(nil)

	t.Run("one tuple per phrase", func(t *testing.T) {
		seq, err := d.KeywordSequence("(@coffee@ OR @espresso bar@) AND NOT @drive-thru@")
		gt.NoError(t, err)
		gt.A(t, seq).Length(2)
		gt.Equal(t, seq[0], model.QueryTuple{Included: []string{"coffee"}, Excluded: []string{"drive-thru"}})
		gt.Equal(t, seq[1], model.QueryTuple{Included: []string{"espresso bar"}, Excluded: []string{"drive-thru"}})
	})

	t.Run("exclusion only", func(t *testing.T) {
		seq, err := d.KeywordSequence("NOT @drive-thru@")
		gt.NoError(t, err)
		gt.A(t, seq).Length(1)
		gt.A(t, seq[0].Included).Length(0)
		gt.Equal(t, seq[0].Excluded, []string{"drive-thru"})
	})

	t.Run("empty", func(t *testing.T) {
		seq, err := d.KeywordSequence("")
		gt.NoError(t, err)
		gt.A(t, seq).Length(0)
	})
}

func TestLoadPopularity(t *testing.T) {
	dir := t.TempDir()

	t.Run("yaml groups are flattened", func(t *testing.T) {
		path := filepath.Join(dir, "popularity.yaml")
		gt.NoError(t, os.WriteFile(path, []byte(`
food:
  cafe: 12
  restaurant: 60
shopping:
  bakery: 6
  cafe: 15
`), 0600))

		p, err := query.LoadPopularity(path)
		gt.NoError(t, err)
		gt.Equal(t, p.Len(), 3)

		v, ok := p.Estimate("cafe")
		gt.True(t, ok)
		gt.Equal(t, v, 15.0)

		_, ok = p.Estimate("unknown")
		gt.False(t, ok)
	})

	t.Run("json is accepted", func(t *testing.T) {
		path := filepath.Join(dir, "popularity.json")
		gt.NoError(t, os.WriteFile(path, []byte(`{"food": {"cafe": 12}}`), 0600))

		p, err := query.LoadPopularity(path)
		gt.NoError(t, err)
		v, ok := p.Estimate("cafe")
		gt.True(t, ok)
		gt.Equal(t, v, 12.0)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := query.LoadPopularity(filepath.Join(dir, "absent.yaml"))
		gt.Error(t, err)
	})

	t.Run("wrong shape", func(t *testing.T) {
		path := filepath.Join(dir, "flat.yaml")
		gt.NoError(t, os.WriteFile(path, []byte("- cafe\n- bakery\n"), 0600))
		_, err := query.LoadPopularity(path)
		gt.Error(t, err)
	})
}
