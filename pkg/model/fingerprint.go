package model

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strings"
)

// Fingerprint is the deterministic cache key of a dataset. Requests with the
// same geography, term set and mode flags map to the same Fingerprint.
type Fingerprint string

// Flags are the request modes that change the shape of provider results
type Flags struct {
	IDsOnly    bool
	RatingInfo bool
}

func (f Flags) String() string {
	switch {
	case f.IDsOnly && f.RatingInfo:
		return "ids+rating"
	case f.IDsOnly:
		return "ids"
	case f.RatingInfo:
		return "rating"
	default:
		return "std"
	}
}

// NewFingerprint returns the key of an atomic or partial term set
func NewFingerprint(kind TermKind, geo Geography, tuple QueryTuple, flags Flags) Fingerprint {
	return Fingerprint(geo.key() + "_" + tuple.key(kind) + "_" + flags.String())
}

// NewCombinedFingerprint returns the key of the whole request from its
// decomposed term sets. Queries that differ only in term order or spacing
// share the key.
func NewCombinedFingerprint(req *FetchRequest, category, keyword []QueryTuple) Fingerprint {
	sets := make([]string, 0, len(category)+len(keyword))
	for _, t := range category {
		sets = append(sets, t.key(TermKindCategory))
	}
	for _, t := range keyword {
		sets = append(sets, t.key(TermKindKeyword))
	}
	slices.Sort(sets)
	sets = slices.Compact(sets)
	return Fingerprint(req.Geography.key() + "_combined/" + string(req.SearchType) + ":" + strings.Join(sets, ",") + "_" + req.Flags().String())
}

func (q QueryTuple) key(kind TermKind) string {
	return string(kind) + ":" + joinSorted(q.Included) + "-" + joinSorted(q.Excluded)
}

// Hash returns a fixed-length digest usable where the raw key is not, e.g. as
// a document ID or object name
func (f Fingerprint) Hash() string {
	sum := sha256.Sum256([]byte(f))
	return hex.EncodeToString(sum[:])
}

func (f Fingerprint) String() string {
	return string(f)
}

func joinSorted(terms []string) string {
	sorted := slices.Clone(terms)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	return strings.Join(sorted, "+")
}
