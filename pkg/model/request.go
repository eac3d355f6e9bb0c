package model

import (
	"github.com/m-mizutani/goerr/v2"
)

var (
	ErrInvalidRequest = goerr.New("invalid request")
)

// Action selects between a single sample acquisition and plan driven
// exhaustive coverage
type Action string

const (
	ActionSample   Action = "sample"
	ActionFullData Action = "full data"
)

// Validate checks if the action is supported
func (a Action) Validate() error {
	switch a {
	case ActionSample, ActionFullData:
		return nil
	default:
		return goerr.Wrap(ErrInvalidRequest, "unsupported action", goerr.V("action", a))
	}
}

// SearchType selects which provider call shapes answer the query
type SearchType string

const (
	SearchTypeCategory SearchType = "category_search"
	SearchTypeKeyword  SearchType = "keyword_search"
	SearchTypeDefault  SearchType = "default"
)

// Validate checks if the search type is supported
func (s SearchType) Validate() error {
	switch s {
	case SearchTypeCategory, SearchTypeKeyword, SearchTypeDefault:
		return nil
	default:
		return goerr.Wrap(ErrInvalidRequest, "unsupported search type", goerr.V("search_type", s))
	}
}

// UsesCategory reports whether the category flow runs
func (s SearchType) UsesCategory() bool {
	return s == SearchTypeCategory || s == SearchTypeDefault
}

// UsesKeyword reports whether the keyword flow runs
func (s SearchType) UsesKeyword() bool {
	return s == SearchTypeKeyword || s == SearchTypeDefault
}

// FetchRequest is the input of one acquisition
type FetchRequest struct {
	Geography
	BooleanQuery string     `json:"boolean_query"`
	Action       Action     `json:"action"`
	SearchType   SearchType `json:"search_type"`
	PageToken    string     `json:"page_token"`
	CountryName  string     `json:"country_name"`
	CityName     string     `json:"city_name"`

	IDsAndLocationOnly       bool `json:"ids_and_location_only"`
	IncludeRatingInfo        bool `json:"include_rating_info"`
	IncludeOnlySubProperties bool `json:"include_only_sub_properties"`
}

// Validate checks the request and fills defaults
func (r *FetchRequest) Validate() error {
	if r.Action == "" {
		r.Action = ActionSample
	}
	if r.SearchType == "" {
		r.SearchType = SearchTypeDefault
	}
	if err := r.Action.Validate(); err != nil {
		return err
	}
	if err := r.SearchType.Validate(); err != nil {
		return err
	}
	if r.BooleanQuery == "" {
		return goerr.Wrap(ErrInvalidRequest, "boolean query is empty")
	}
	return r.Geography.Validate()
}

// Flags returns the mode flags that change the shape of provider results
func (r *FetchRequest) Flags() Flags {
	return Flags{
		IDsOnly:    r.IDsAndLocationOnly,
		RatingInfo: r.IncludeRatingInfo,
	}
}

// FetchResult is the output of one acquisition. NextPlanIndex is the index
// of the step to run next; a sample counts as step 0 and always reports 1.
// NextPageToken and PlanName are only set in full data mode.
type FetchResult struct {
	Dataset       *Dataset    `json:"dataset"`
	DatasetKey    Fingerprint `json:"bknd_dataset_id"`
	RecordsCount  int         `json:"records_count"`
	NextPageToken string      `json:"next_page_token"`
	PlanName      string      `json:"plan_name,omitempty"`
	NextPlanIndex int         `json:"next_plan_index"`
}
