package model

import (
	"slices"
	"strings"
)

// TermKind tells which provider call shape answers a term set
type TermKind string

const (
	TermKindCategory TermKind = "category"
	TermKindKeyword  TermKind = "keyword"
)

// QueryTuple is one (included, excluded) term combination produced by query
// decomposition. The final dataset is the union of every tuple's partial
// dataset.
type QueryTuple struct {
	Included []string `json:"included"`
	Excluded []string `json:"excluded"`
}

// NewQueryTuple creates a tuple with normalized term lists
func NewQueryTuple(included, excluded []string) QueryTuple {
	return QueryTuple{
		Included: normalizeTerms(included),
		Excluded: normalizeTerms(excluded),
	}
}

// IncludeOnly returns the atomic tuple of the included terms
func (q QueryTuple) IncludeOnly() QueryTuple {
	return QueryTuple{Included: q.Included}
}

// ExcludeOnly returns the atomic tuple of the excluded terms
func (q QueryTuple) ExcludeOnly() QueryTuple {
	return QueryTuple{Excluded: q.Excluded}
}

// LeadTerm returns the term used as the text query for an atomic tuple
func (q QueryTuple) LeadTerm() string {
	if len(q.Included) > 0 {
		return q.Included[0]
	}
	if len(q.Excluded) > 0 {
		return q.Excluded[0]
	}
	return ""
}

// normalizeTerms trims and de-duplicates terms and keeps the first-seen order
func normalizeTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" || slices.Contains(out, t) {
			continue
		}
		out = append(out, t)
	}
	return out
}
