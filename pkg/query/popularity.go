package query

import (
	"maps"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"
)

// Popularity holds the expected number of results per place type. It is
// built once and never modified.
type Popularity struct {
	estimates map[string]float64
}

// NewPopularity creates a table from type estimates
func NewPopularity(estimates map[string]float64) *Popularity {
	return &Popularity{estimates: maps.Clone(estimates)}
}

// LoadPopularity reads a grouped table, {group: {type: estimate}}, from a
// YAML or JSON file and flattens it. Later groups override earlier ones for
// the same type.
func LoadPopularity(path string) (*Popularity, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read popularity table", goerr.V("path", path))
	}

	var grouped yaml.Node
	if err := yaml.Unmarshal(raw, &grouped); err != nil {
		return nil, goerr.Wrap(err, "failed to parse popularity table", goerr.V("path", path))
	}

	var groups map[string]map[string]float64
	if err := grouped.Decode(&groups); err != nil {
		return nil, goerr.Wrap(err, "popularity table must map groups to type estimates", goerr.V("path", path))
	}

	estimates := make(map[string]float64)
	for _, group := range orderedGroups(&grouped) {
		maps.Copy(estimates, groups[group])
	}
	return &Popularity{estimates: estimates}, nil
}

// orderedGroups returns group names in document order
func orderedGroups(doc *yaml.Node) []string {
	root := doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil
	}
	names := make([]string, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		names = append(names, root.Content[i].Value)
	}
	return names
}

// Estimate returns the expected result count of a type
func (p *Popularity) Estimate(placeType string) (float64, bool) {
	if p == nil {
		return 0, false
	}
	v, ok := p.estimates[placeType]
	return v, ok
}

// Len returns the number of known types
func (p *Popularity) Len() int {
	if p == nil {
		return 0
	}
	return len(p.estimates)
}
