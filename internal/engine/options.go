package engine

import (
	"fmt"

	"routeeta/internal/geo"
	"routeeta/internal/model"
	"routeeta/internal/opt"
	"routeeta/internal/traffic"
)

// Options tune the engine. They decode from the engine profile YAML; keys
// missing from the file keep their defaults.
type Options struct {
	Speeds         geo.SpeedTable    `yaml:"speeds" json:"speeds"`
	Traffic        traffic.Config    `yaml:"traffic" json:"traffic"`
	DefaultVehicle model.VehicleType `yaml:"defaultVehicle" json:"defaultVehicle"`
	// DefaultPrepMin is used when a delivery estimate has no merchant prep time.
	DefaultPrepMin float64 `yaml:"defaultPrepMin" json:"defaultPrepMin"`
	// HandoffMin is the fixed door time added to every delivery estimate.
	HandoffMin    float64 `yaml:"handoffMin" json:"handoffMin"`
	Algorithm     string  `yaml:"algorithm" json:"algorithm"`
	MaxExactStops int     `yaml:"maxExactStops" json:"maxExactStops"`
}

func DefaultOptions() Options {
	return Options{
		Speeds:         geo.DefaultSpeeds(),
		Traffic:        traffic.DefaultConfig(),
		DefaultVehicle: model.VehicleMotorcycle,
		DefaultPrepMin: 30,
		HandoffMin:     5,
		Algorithm:      opt.AlgoGreedy,
		MaxExactStops:  opt.DefaultMaxExactStops,
	}
}

func (o Options) validate() error {
	if _, err := geo.ParseVehicle(string(o.DefaultVehicle), ""); err != nil || o.DefaultVehicle == "" {
		return fmt.Errorf("defaultVehicle %q is not a supported vehicle", o.DefaultVehicle)
	}
	if !(o.DefaultPrepMin >= 0 && o.DefaultPrepMin <= MaxPrepMin) {
		return fmt.Errorf("defaultPrepMin must be within [0, %d], got %v", MaxPrepMin, o.DefaultPrepMin)
	}
	if !(o.HandoffMin >= 0 && o.HandoffMin <= MaxPrepMin) {
		return fmt.Errorf("handoffMin must be within [0, %d], got %v", MaxPrepMin, o.HandoffMin)
	}
	if _, err := opt.SolverFor(o.Algorithm, o.MaxExactStops); err != nil {
		return err
	}
	return nil
}
