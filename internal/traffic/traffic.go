// Package traffic models time-of-day congestion as a multiplier on raw travel time.
package traffic

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

// Status labels for a multiplier.
const (
	StatusLight    = "light"
	StatusModerate = "moderate"
	StatusHeavy    = "heavy"
)

// Window applies Multiplier between Start and End (local "HH:MM", End exclusive).
// A window whose End is not after Start wraps past midnight.
type Window struct {
	Name       string  `yaml:"name" json:"name"`
	Start      string  `yaml:"start" json:"start"`
	End        string  `yaml:"end" json:"end"`
	Multiplier float64 `yaml:"multiplier" json:"multiplier"`
}

// Thresholds split multipliers into statuses: < Moderate is light, < Heavy is moderate.
type Thresholds struct {
	Moderate float64 `yaml:"moderate" json:"moderate"`
	Heavy    float64 `yaml:"heavy" json:"heavy"`
}

type Config struct {
	Timezone         string     `yaml:"timezone" json:"timezone"`
	BaseMultiplier   float64    `yaml:"baseMultiplier" json:"baseMultiplier"`
	Windows          []Window   `yaml:"windows" json:"windows"`
	ShortTripKm      float64    `yaml:"shortTripKm" json:"shortTripKm"`
	ShortTripDamping float64    `yaml:"shortTripDamping" json:"shortTripDamping"`
	Thresholds       Thresholds `yaml:"thresholds" json:"thresholds"`
}

// DefaultConfig is tuned for an Indian metro delivery zone.
func DefaultConfig() Config {
	return Config{
		Timezone:       "Asia/Kolkata",
		BaseMultiplier: 1.1,
		Windows: []Window{
			{Name: "morning_peak", Start: "08:00", End: "10:30", Multiplier: 1.45},
			{Name: "lunch", Start: "12:00", End: "14:00", Multiplier: 1.25},
			{Name: "evening_peak", Start: "17:30", End: "21:00", Multiplier: 1.6},
			{Name: "night", Start: "22:00", End: "06:00", Multiplier: 1.0},
		},
		ShortTripKm:      1.0,
		ShortTripDamping: 0.5,
		Thresholds:       Thresholds{Moderate: 1.2, Heavy: 1.5},
	}
}

// Reading is the traffic estimate for one trip.
type Reading struct {
	Multiplier float64
	Status     string
	Window     string
}

type window struct {
	name       string
	start, end int // minutes after local midnight
	mult       float64
}

func (w window) contains(minute int) bool {
	if w.start < w.end {
		return minute >= w.start && minute < w.end
	}
	return minute >= w.start || minute < w.end
}

// Model evaluates Config. It holds no mutable state.
type Model struct {
	cfg     Config
	loc     *time.Location
	windows []window
}

func New(cfg Config) (*Model, error) {
	loc := time.UTC
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("traffic timezone: %w", err)
		}
		loc = l
	}
	if cfg.BaseMultiplier < 1 {
		return nil, fmt.Errorf("baseMultiplier must be >= 1, got %v", cfg.BaseMultiplier)
	}
	if cfg.Thresholds.Moderate <= 1 || cfg.Thresholds.Heavy <= cfg.Thresholds.Moderate {
		return nil, errors.New("thresholds must satisfy 1 < moderate < heavy")
	}
	if cfg.ShortTripDamping < 0 || cfg.ShortTripDamping > 1 {
		return nil, fmt.Errorf("shortTripDamping must be in [0,1], got %v", cfg.ShortTripDamping)
	}
	m := &Model{cfg: cfg, loc: loc}
	for _, w := range cfg.Windows {
		start, err := parseClock(w.Start)
		if err != nil {
			return nil, fmt.Errorf("window %q start: %w", w.Name, err)
		}
		end, err := parseClock(w.End)
		if err != nil {
			return nil, fmt.Errorf("window %q end: %w", w.Name, err)
		}
		if w.Multiplier < 1 {
			return nil, fmt.Errorf("window %q multiplier must be >= 1, got %v", w.Name, w.Multiplier)
		}
		if start == end {
			return nil, fmt.Errorf("window %q is empty", w.Name)
		}
		m.windows = append(m.windows, window{name: w.Name, start: start, end: end, mult: w.Multiplier})
	}
	return m, nil
}

func parseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("want HH:MM, got %q", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 24 {
		return 0, fmt.Errorf("bad hour in %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("bad minute in %q", s)
	}
	return h*60 + m, nil
}

// Config returns the configuration the model was built from.
func (m *Model) Config() Config { return m.cfg }

// Multiplier returns the congestion factor for a trip of routeLengthKm starting at at.
func (m *Model) Multiplier(at time.Time, routeLengthKm float64) Reading {
	local := at.In(m.loc)
	minute := local.Hour()*60 + local.Minute()
	mult, name := m.cfg.BaseMultiplier, "base"
	for _, w := range m.windows {
		if w.contains(minute) {
			mult, name = w.mult, w.name
			break
		}
	}
	if routeLengthKm < m.cfg.ShortTripKm {
		mult = 1 + (mult-1)*m.cfg.ShortTripDamping
	}
	if math.IsNaN(mult) || mult < 1 {
		mult = 1
	}
	return Reading{Multiplier: mult, Status: m.Status(mult), Window: name}
}

// Status labels a multiplier using the configured thresholds.
func (m *Model) Status(mult float64) string {
	switch {
	case mult < m.cfg.Thresholds.Moderate:
		return StatusLight
	case mult < m.cfg.Thresholds.Heavy:
		return StatusModerate
	default:
		return StatusHeavy
	}
}

// Adjust inflates rawMin by the multiplier for the trip.
func (m *Model) Adjust(rawMin float64, at time.Time, routeLengthKm float64) (float64, Reading) {
	r := m.Multiplier(at, routeLengthKm)
	return rawMin * r.Multiplier, r
}
