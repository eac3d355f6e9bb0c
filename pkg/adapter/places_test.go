package adapter_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/placeset/pkg/adapter"
	"github.com/m-mizutani/placeset/pkg/model"
)

func newServer(t *testing.T, handler http.HandlerFunc) *adapter.PlacesClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return adapter.NewPlaces("test-key",
		adapter.WithBaseURL(srv.URL),
		adapter.WithLegacyURL(srv.URL+"/legacy"),
	)
}

func TestSearchNearby(t *testing.T) {
	var (
		gotMask string
		gotKey  string
		gotBody map[string]any
	)
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		gt.Equal(t, r.URL.Path, "/places:searchNearby")
		gt.Equal(t, r.Method, http.MethodPost)
		gotMask = r.Header.Get("X-Goog-FieldMask")
		gotKey = r.Header.Get("X-Goog-Api-Key")
		gt.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"places":[{"id":"p1","location":{"latitude":35.1,"longitude":139.2}}]}`))
	})

	places, err := client.SearchNearby(context.Background(), &adapter.NearbyRequest{
		IncludedTypes:       []string{"cafe"},
		ExcludedTypes:       []string{"bar"},
		LocationRestriction: adapter.NewArea(model.Geography{Lat: 35, Lng: 139, Radius: 500}),
		RatingInfo:          true,
	})
	gt.NoError(t, err)
	gt.A(t, places).Length(1)
	gt.Equal(t, places[0].ID(), model.PlaceID("p1"))

	gt.Equal(t, gotKey, "test-key")
	gt.Equal(t, gotMask, adapter.DefaultEnterpriseFields)
	gt.Equal(t, gotBody["includedTypes"], any([]any{"cafe"}))
	gt.Equal(t, gotBody["excludedTypes"], any([]any{"bar"}))
	_, hasRating := gotBody["RatingInfo"]
	gt.False(t, hasRating)
}

func TestSearchTextIDsOnlyMask(t *testing.T) {
	var gotMask string
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		gt.Equal(t, r.URL.Path, "/places:searchText")
		gotMask = r.Header.Get("X-Goog-FieldMask")
		_, _ = w.Write([]byte(`{"places":[]}`))
	})

	places, err := client.SearchText(context.Background(), &adapter.TextRequest{
		TextQuery: "ramen",
		IDsOnly:   true,
	})
	gt.NoError(t, err)
	gt.A(t, places).Length(0)
	gt.Equal(t, gotMask, adapter.DefaultIDsOnlyFields+",nextPageToken")
}

func TestStatusError(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"quota"}`))
	})

	_, err := client.SearchText(context.Background(), &adapter.TextRequest{TextQuery: "ramen"})
	gt.Error(t, err)

	var statusErr *adapter.StatusError
	gt.True(t, errors.As(err, &statusErr))
	gt.Equal(t, statusErr.Code, http.StatusTooManyRequests)
	gt.S(t, statusErr.Body).Contains("quota")
}

func TestMalformedPayload(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"places": [`))
	})

	_, err := client.SearchNearby(context.Background(), &adapter.NearbyRequest{IncludedTypes: []string{"cafe"}})
	gt.Error(t, err)
	gt.True(t, errors.Is(err, adapter.ErrMalformedPayload))
}

func TestGetDetails(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		gt.Equal(t, r.Method, http.MethodGet)
		gt.Equal(t, r.URL.Path, "/places/p1")
		gt.Equal(t, r.Header.Get("X-Goog-FieldMask"), adapter.DefaultDetailsFields)
		_, _ = w.Write([]byte(`{"id":"p1","displayName":{"text":"Blue Bottle"},"rating":4.5}`))
	})

	details, err := client.GetDetails(context.Background(), "p1")
	gt.NoError(t, err)
	gt.Equal(t, details.ID(), model.PlaceID("p1"))
	gt.Equal(t, details.DisplayName(), "Blue Bottle")
	gt.Equal(t, details["rating"], any(4.5))
}

func TestSearchLegacy(t *testing.T) {
	t.Run("normalizes results", func(t *testing.T) {
		client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			gt.Equal(t, r.URL.Path, "/legacy")
			q := r.URL.Query()
			gt.Equal(t, q.Get("location"), "35.5,139.25")
			gt.Equal(t, q.Get("radius"), "800")
			gt.Equal(t, q.Get("type"), "cafe")
			gt.Equal(t, q.Get("key"), "test-key")
			_, _ = w.Write([]byte(`{
				"status": "OK",
				"results": [{
					"place_id": "legacy-1",
					"name": "Corner Cafe",
					"vicinity": "1-2-3 Shibuya",
					"user_ratings_total": 12,
					"geometry": {"location": {"lat": 35.51, "lng": 139.26}}
				}]
			}`))
		})

		legacy := adapter.LegacyFromNearby(&adapter.NearbyRequest{
			IncludedTypes:       []string{"cafe", "bakery"},
			LocationRestriction: adapter.NewArea(model.Geography{Lat: 35.5, Lng: 139.25, Radius: 800}),
		})
		places, err := client.SearchLegacy(context.Background(), legacy)
		gt.NoError(t, err)
		gt.A(t, places).Length(1)

		p := places[0]
		gt.Equal(t, p.ID(), model.PlaceID("legacy-1"))
		gt.Equal(t, p.DisplayName(), "Corner Cafe")
		gt.Equal(t, p["formattedAddress"], any("1-2-3 Shibuya"))
		lat, lng, ok := p.Location()
		gt.True(t, ok)
		gt.Equal(t, lat, 35.51)
		gt.Equal(t, lng, 139.26)
	})

	t.Run("zero results is not an error", func(t *testing.T) {
		client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"status":"ZERO_RESULTS","results":[]}`))
		})

		places, err := client.SearchLegacy(context.Background(), adapter.LegacyFromText(&adapter.TextRequest{TextQuery: "ramen"}))
		gt.NoError(t, err)
		gt.A(t, places).Length(0)
	})

	t.Run("denied status is a status error", func(t *testing.T) {
		client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"status":"OVER_QUERY_LIMIT","error_message":"slow down"}`))
		})

		_, err := client.SearchLegacy(context.Background(), adapter.LegacyFromText(&adapter.TextRequest{TextQuery: "ramen"}))
		var statusErr *adapter.StatusError
		gt.True(t, errors.As(err, &statusErr))
		gt.Equal(t, statusErr.Status, "OVER_QUERY_LIMIT")
	})

	t.Run("missing status is malformed", func(t *testing.T) {
		client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"results":[]}`))
		})

		_, err := client.SearchLegacy(context.Background(), adapter.LegacyFromText(&adapter.TextRequest{TextQuery: "ramen"}))
		gt.True(t, errors.Is(err, adapter.ErrMalformedPayload))
	})
}
