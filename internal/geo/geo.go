// Package geo estimates great-circle distances and vehicle travel times.
package geo

import (
	"math"
	"strings"

	"routeeta/internal/model"
)

// EarthRadiusKm is the mean Earth radius used by HaversineKm.
const EarthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance between a and b in kilometers.
func HaversineKm(a, b model.Coordinate) float64 {
	if a == b {
		return 0
	}
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	if h > 1 {
		h = 1
	}
	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(h))
}

// Validate checks that c is a finite coordinate within WGS-84 ranges.
func Validate(c model.Coordinate) error {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lng, 0) {
		return model.Errorf(model.CodeInvalidCoordinate, "coordinate (%v, %v) is not finite", c.Lat, c.Lng)
	}
	if c.Lat < -90 || c.Lat > 90 {
		return model.Errorf(model.CodeInvalidCoordinate, "latitude %v outside [-90, 90]", c.Lat)
	}
	if c.Lng < -180 || c.Lng > 180 {
		return model.Errorf(model.CodeInvalidCoordinate, "longitude %v outside [-180, 180]", c.Lng)
	}
	return nil
}

// ParseVehicle normalizes a vehicle name. Empty input yields def.
func ParseVehicle(s string, def model.VehicleType) (model.VehicleType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return def, nil
	}
	for _, v := range model.Vehicles {
		if string(v) == s {
			return v, nil
		}
	}
	return "", model.Errorf(model.CodeInvalidVehicleType, "unknown vehicle type %q (allowed: bicycle, motorcycle, car, van)", s)
}
