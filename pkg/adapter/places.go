package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/placeset/pkg/model"
)

var (
	// ErrMalformedPayload is returned when the provider answers with a body
	// that cannot be interpreted. It is not retried.
	ErrMalformedPayload = goerr.New("malformed provider payload")
)

const (
	DefaultPlacesBaseURL = "https://places.googleapis.com/v1"
	DefaultLegacyURL     = "https://maps.googleapis.com/maps/api/place/nearbysearch/json"

	DefaultProFields        = "places.id,places.displayName,places.location,places.types,places.primaryType,places.formattedAddress,places.businessStatus,places.googleMapsUri,places.googleMapsLinks,places.photos"
	DefaultEnterpriseFields = DefaultProFields + ",places.rating,places.userRatingCount,places.internationalPhoneNumber,places.nationalPhoneNumber,places.websiteUri,places.priceLevel"
	DefaultIDsOnlyFields    = "places.id,places.location"
	DefaultDetailsFields    = "id,displayName,location,types,primaryType,formattedAddress,rating,userRatingCount,internationalPhoneNumber,websiteUri,priceLevel,businessStatus,photos,googleMapsLinks"
)

// StatusError is a non-success answer of the provider
type StatusError struct {
	Code   int
	Status string
	Body   string
}

func (e *StatusError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("provider returned %d (%s)", e.Code, e.Status)
	}
	return fmt.Sprintf("provider returned %d", e.Code)
}

// LatLng is a provider coordinate
type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Circle is a provider search area
type Circle struct {
	Center LatLng  `json:"center"`
	Radius float64 `json:"radius"`
}

// Area wraps a circle as the provider expects it
type Area struct {
	Circle Circle `json:"circle"`
}

// NewArea converts a geography into a provider area
func NewArea(geo model.Geography) Area {
	return Area{Circle: Circle{
		Center: LatLng{Latitude: geo.Lat, Longitude: geo.Lng},
		Radius: geo.Radius,
	}}
}

func (a Area) geography() model.Geography {
	return model.Geography{Lat: a.Circle.Center.Latitude, Lng: a.Circle.Center.Longitude, Radius: a.Circle.Radius}
}

// NearbyRequest is a category search restricted to a circle
type NearbyRequest struct {
	IncludedTypes       []string `json:"includedTypes,omitempty"`
	ExcludedTypes       []string `json:"excludedTypes,omitempty"`
	LocationRestriction Area     `json:"locationRestriction"`

	RatingInfo bool `json:"-"`
}

// TextRequest is a free-text search biased to a circle
type TextRequest struct {
	TextQuery    string `json:"textQuery"`
	LocationBias Area   `json:"locationBias"`
	PageToken    string `json:"pageToken,omitempty"`

	IDsOnly bool `json:"-"`
}

// LegacyRequest is the flat parameter call of the legacy protocol
type LegacyRequest struct {
	Geography model.Geography
	Type      string
	Query     string
}

// LegacyFromNearby rewrites a category search into the legacy protocol, which
// only supports a single type
func LegacyFromNearby(req *NearbyRequest) *LegacyRequest {
	legacy := &LegacyRequest{Geography: req.LocationRestriction.geography()}
	if len(req.IncludedTypes) > 0 {
		legacy.Type = req.IncludedTypes[0]
	}
	return legacy
}

// LegacyFromText rewrites a text search into the legacy protocol
func LegacyFromText(req *TextRequest) *LegacyRequest {
	return &LegacyRequest{
		Geography: req.LocationBias.geography(),
		Query:     req.TextQuery,
	}
}

// Places is the external places provider
type Places interface {
	SearchNearby(ctx context.Context, req *NearbyRequest) ([]model.Place, error)
	SearchText(ctx context.Context, req *TextRequest) ([]model.Place, error)
	GetDetails(ctx context.Context, id model.PlaceID) (model.PlaceDetails, error)
	SearchLegacy(ctx context.Context, req *LegacyRequest) ([]model.Place, error)
}

// PlacesClient implements Places over HTTP
type PlacesClient struct {
	apiKey     string
	baseURL    string
	legacyURL  string
	httpClient *http.Client

	proFields        string
	enterpriseFields string
	idsOnlyFields    string
	detailsFields    string
}

type PlacesOption func(*PlacesClient)

func WithBaseURL(u string) PlacesOption {
	return func(c *PlacesClient) {
		c.baseURL = u
	}
}

func WithLegacyURL(u string) PlacesOption {
	return func(c *PlacesClient) {
		c.legacyURL = u
	}
}

func WithHTTPClient(client *http.Client) PlacesOption {
	return func(c *PlacesClient) {
		c.httpClient = client
	}
}

// WithFieldMasks overrides the field masks. Empty values keep the default.
func WithFieldMasks(pro, enterprise, idsOnly, details string) PlacesOption {
	return func(c *PlacesClient) {
		if pro != "" {
			c.proFields = pro
		}
		if enterprise != "" {
			c.enterpriseFields = enterprise
		}
		if idsOnly != "" {
			c.idsOnlyFields = idsOnly
		}
		if details != "" {
			c.detailsFields = details
		}
	}
}

// NewPlaces creates a provider client
func NewPlaces(apiKey string, opts ...PlacesOption) *PlacesClient {
	c := &PlacesClient{
		apiKey:    apiKey,
		baseURL:   DefaultPlacesBaseURL,
		legacyURL: DefaultLegacyURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		proFields:        DefaultProFields,
		enterpriseFields: DefaultEnterpriseFields,
		idsOnlyFields:    DefaultIDsOnlyFields,
		detailsFields:    DefaultDetailsFields,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type placesResponse struct {
	Places        []model.Place `json:"places"`
	NextPageToken string        `json:"nextPageToken"`
}

func (c *PlacesClient) SearchNearby(ctx context.Context, req *NearbyRequest) ([]model.Place, error) {
	fields := c.proFields
	if req.RatingInfo {
		fields = c.enterpriseFields
	}

	var resp placesResponse
	if err := c.post(ctx, c.baseURL+"/places:searchNearby", fields, req, &resp); err != nil {
		return nil, err
	}
	return resp.Places, nil
}

func (c *PlacesClient) SearchText(ctx context.Context, req *TextRequest) ([]model.Place, error) {
	fields := c.proFields
	if req.IDsOnly {
		fields = c.idsOnlyFields
	}

	var resp placesResponse
	if err := c.post(ctx, c.baseURL+"/places:searchText", fields+",nextPageToken", req, &resp); err != nil {
		return nil, err
	}
	return resp.Places, nil
}

func (c *PlacesClient) GetDetails(ctx context.Context, id model.PlaceID) (model.PlaceDetails, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/places/"+url.PathEscape(string(id)), nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Goog-Api-Key", c.apiKey)
	httpReq.Header.Set("X-Goog-FieldMask", c.detailsFields)

	var details model.PlaceDetails
	if err := c.send(httpReq, &details); err != nil {
		return nil, goerr.Wrap(err, "failed to get place details", goerr.V("id", id))
	}
	return details, nil
}

type legacyResponse struct {
	Results      []map[string]any `json:"results"`
	Status       string           `json:"status"`
	ErrorMessage string           `json:"error_message"`
}

func (c *PlacesClient) SearchLegacy(ctx context.Context, req *LegacyRequest) ([]model.Place, error) {
	params := url.Values{}
	params.Set("location", strconv.FormatFloat(req.Geography.Lat, 'f', -1, 64)+","+strconv.FormatFloat(req.Geography.Lng, 'f', -1, 64))
	params.Set("radius", strconv.FormatFloat(req.Geography.Radius, 'f', -1, 64))
	params.Set("key", c.apiKey)
	if req.Type != "" {
		params.Set("type", req.Type)
	}
	if req.Query != "" {
		params.Set("query", req.Query)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.legacyURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var resp legacyResponse
	if err := c.send(httpReq, &resp); err != nil {
		return nil, goerr.Wrap(err, "failed to call legacy search")
	}

	switch resp.Status {
	case "OK", "ZERO_RESULTS":
	case "":
		return nil, goerr.Wrap(ErrMalformedPayload, "legacy response has no status")
	default:
		return nil, &StatusError{Code: http.StatusOK, Status: resp.Status, Body: resp.ErrorMessage}
	}

	places := make([]model.Place, 0, len(resp.Results))
	for _, r := range resp.Results {
		places = append(places, normalizeLegacy(r))
	}
	return places, nil
}

func (c *PlacesClient) post(ctx context.Context, endpoint, fields string, body any, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal request body")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return goerr.Wrap(err, "failed to create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Goog-Api-Key", c.apiKey)
	httpReq.Header.Set("X-Goog-FieldMask", fields)

	if err := c.send(httpReq, out); err != nil {
		return goerr.Wrap(err, "failed to call places API", goerr.V("endpoint", endpoint))
	}
	return nil
}

func (c *PlacesClient) send(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return goerr.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return &StatusError{Code: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return goerr.Wrap(ErrMalformedPayload, "failed to decode response",
			goerr.V("status", resp.StatusCode), goerr.V("error", err.Error()))
	}
	return nil
}

// normalizeLegacy maps a legacy result into the modern place shape
func normalizeLegacy(r map[string]any) model.Place {
	p := model.Place{}
	set := func(key string, v any) {
		if v != nil {
			p[key] = v
		}
	}

	set("id", r["place_id"])
	if name, ok := r["name"].(string); ok {
		p["displayName"] = map[string]any{"text": name}
	}
	set("types", r["types"])
	set("formattedAddress", r["vicinity"])
	set("rating", r["rating"])
	set("userRatingCount", r["user_ratings_total"])
	set("businessStatus", r["business_status"])
	set("photos", r["photos"])

	if geometry, ok := r["geometry"].(map[string]any); ok {
		if loc, ok := geometry["location"].(map[string]any); ok {
			p["location"] = map[string]any{
				"latitude":  loc["lat"],
				"longitude": loc["lng"],
			}
		}
	}
	return p
}
