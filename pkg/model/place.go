package model

import (
	"fmt"
)

// Place is a raw place object as returned by the provider's modern API
type Place map[string]any

// PlaceDetails is the raw payload of a place-details lookup
type PlaceDetails = Place

// ID returns the provider identifier of the place
func (p Place) ID() PlaceID {
	s, _ := p["id"].(string)
	return PlaceID(s)
}

// Location returns latitude and longitude of the place
func (p Place) Location() (lat, lng float64, ok bool) {
	loc, isMap := p["location"].(map[string]any)
	if !isMap {
		return 0, 0, false
	}
	lat, latOK := toFloat(loc["latitude"])
	lng, lngOK := toFloat(loc["longitude"])
	return lat, lng, latOK && lngOK
}

// DisplayName returns displayName.text of the place
func (p Place) DisplayName() string {
	if dn, ok := p["displayName"].(map[string]any); ok {
		s, _ := dn["text"].(string)
		return s
	}
	s, _ := p["displayName"].(string)
	return s
}

// NewSentinelPlaces returns a batch of placeholders recording an unrecoverable
// provider failure. Callers must filter them out by SentinelID.
func NewSentinelPlaces(n int, status int) []Place {
	places := make([]Place, n)
	for i := range places {
		places[i] = Place{
			"id":          string(SentinelID),
			"displayName": map[string]any{"text": fmt.Sprintf("Failed to retrieve data %d", status)},
		}
	}
	return places
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
