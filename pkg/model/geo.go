package model

import (
	"math"
	"strconv"

	"github.com/m-mizutani/goerr/v2"
)

const metersPerDegreeLat = 111320.0

// Geography is a search circle
type Geography struct {
	Lat    float64 `json:"lat" firestore:"lat" yaml:"lat"`
	Lng    float64 `json:"lng" firestore:"lng" yaml:"lng"`
	Radius float64 `json:"radius" firestore:"radius" yaml:"radius"`
}

// Validate checks if the geography is usable for a provider call
func (g Geography) Validate() error {
	if g.Lat < -90 || g.Lat > 90 {
		return goerr.Wrap(ErrInvalidRequest, "latitude out of range", goerr.V("lat", g.Lat))
	}
	if g.Lng < -180 || g.Lng > 180 {
		return goerr.Wrap(ErrInvalidRequest, "longitude out of range", goerr.V("lng", g.Lng))
	}
	if g.Radius <= 0 {
		return goerr.Wrap(ErrInvalidRequest, "radius must be positive", goerr.V("radius", g.Radius))
	}
	return nil
}

// Offset returns the geography moved by north/east meters with a new radius
func (g Geography) Offset(northMeters, eastMeters, radius float64) Geography {
	lat := g.Lat + northMeters/metersPerDegreeLat
	cos := math.Cos(g.Lat * math.Pi / 180)
	lng := g.Lng
	if cos > 1e-9 {
		lng = g.Lng + eastMeters/(metersPerDegreeLat*cos)
	}
	return Geography{Lat: lat, Lng: lng, Radius: radius}
}

func (g Geography) key() string {
	return formatFloat(g.Lng) + "_" + formatFloat(g.Lat) + "_" + formatFloat(g.Radius)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
