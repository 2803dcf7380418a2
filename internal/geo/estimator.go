package geo

import (
	"fmt"

	"routeeta/internal/model"
)

// SpeedTable maps a vehicle to its assumed average speed in km/h.
type SpeedTable map[model.VehicleType]float64

// DefaultSpeeds are urban averages for a food delivery fleet.
func DefaultSpeeds() SpeedTable {
	return SpeedTable{
		model.VehicleBicycle:    15,
		model.VehicleMotorcycle: 30,
		model.VehicleCar:        25,
		model.VehicleVan:        22,
	}
}

// Validate requires a positive speed for every supported vehicle.
func (t SpeedTable) Validate() error {
	for _, v := range model.Vehicles {
		s, ok := t[v]
		if !ok {
			return fmt.Errorf("speed for %s missing", v)
		}
		if s <= 0 {
			return fmt.Errorf("speed for %s must be > 0, got %v", v, s)
		}
	}
	for v := range t {
		if _, err := ParseVehicle(string(v), ""); err != nil {
			return fmt.Errorf("speed table: %w", err)
		}
	}
	return nil
}

// Leg is the untrafficked distance and duration between two points.
type Leg struct {
	DistanceKm     float64
	RawDurationMin float64
}

// Estimator converts distance into travel time per vehicle.
type Estimator struct {
	speeds SpeedTable
}

func NewEstimator(speeds SpeedTable) (*Estimator, error) {
	if speeds == nil {
		speeds = DefaultSpeeds()
	}
	if err := speeds.Validate(); err != nil {
		return nil, err
	}
	cp := make(SpeedTable, len(speeds))
	for k, v := range speeds {
		cp[k] = v
	}
	return &Estimator{speeds: cp}, nil
}

// Speed returns the configured km/h for vehicle.
func (e *Estimator) Speed(vehicle model.VehicleType) (float64, error) {
	s, ok := e.speeds[vehicle]
	if !ok {
		return 0, model.Errorf(model.CodeInvalidVehicleType, "unknown vehicle type %q", vehicle)
	}
	return s, nil
}

// Estimate returns the haversine distance and raw travel time from a to b.
func (e *Estimator) Estimate(a, b model.Coordinate, vehicle model.VehicleType) (Leg, error) {
	if err := Validate(a); err != nil {
		return Leg{}, err
	}
	if err := Validate(b); err != nil {
		return Leg{}, err
	}
	speed, err := e.Speed(vehicle)
	if err != nil {
		return Leg{}, err
	}
	km := HaversineKm(a, b)
	return Leg{DistanceKm: km, RawDurationMin: km / speed * 60}, nil
}

// Speeds returns a copy of the speed table.
func (e *Estimator) Speeds() SpeedTable {
	cp := make(SpeedTable, len(e.speeds))
	for k, v := range e.speeds {
		cp[k] = v
	}
	return cp
}
