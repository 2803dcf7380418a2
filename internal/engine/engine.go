// Package engine composes distance, traffic and sequencing into the route,
// ETA and delivery estimate operations. An Engine is immutable after New and
// safe for concurrent use.
package engine

import (
	"errors"
	"sort"
	"time"

	"routeeta/internal/geo"
	"routeeta/internal/model"
	"routeeta/internal/opt"
	"routeeta/internal/traffic"
)

type Engine struct {
	opts    Options
	est     *geo.Estimator
	traffic *traffic.Model
	now     func() time.Time
}

type Option func(*Engine)

// WithClock replaces time.Now as the default time reference.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(o Options, extra ...Option) (*Engine, error) {
	if err := o.validate(); err != nil {
		return nil, err
	}
	est, err := geo.NewEstimator(o.Speeds)
	if err != nil {
		return nil, err
	}
	tm, err := traffic.New(o.Traffic)
	if err != nil {
		return nil, err
	}
	e := &Engine{opts: o, est: est, traffic: tm, now: time.Now}
	for _, fn := range extra {
		fn(e)
	}
	return e, nil
}

// Options returns the effective options.
func (e *Engine) Options() Options {
	o := e.opts
	o.Speeds = e.est.Speeds()
	return o
}

// vehicleCosts prices edges for one vehicle using distance and traffic.
type vehicleCosts struct {
	e       *Engine
	vehicle model.VehicleType
}

func (c vehicleCosts) Edge(from, to model.Coordinate, at time.Time) (model.Edge, error) {
	leg, err := c.e.est.Estimate(from, to, c.vehicle)
	if err != nil {
		return model.Edge{}, err
	}
	adj, r := c.e.traffic.Adjust(leg.RawDurationMin, at, leg.DistanceKm)
	return model.Edge{
		DistanceKm:          leg.DistanceKm,
		RawDurationMin:      leg.RawDurationMin,
		TrafficMultiplier:   r.Multiplier,
		AdjustedDurationMin: adj,
	}, nil
}

func (e *Engine) vehicle(s string) (model.VehicleType, error) {
	return geo.ParseVehicle(s, e.opts.DefaultVehicle)
}

func (e *Engine) at(t *time.Time) time.Time {
	if t != nil && !t.IsZero() {
		return *t
	}
	return e.now()
}

// OptimizeInput is one OptimizeRoute request.
type OptimizeInput struct {
	// Origin is the driver position; nil starts at the first location.
	Origin    *model.Coordinate
	Locations []model.Location
	// VehicleType empty selects the default vehicle.
	VehicleType string
	// RespectPickupDeliveryOrder nil means true.
	RespectPickupDeliveryOrder *bool
	Algorithm                  string
	// DepartAt pins the traffic time reference; nil uses the clock.
	DepartAt  *time.Time
	Collected map[string]struct{}
}

// OptimizeRoute sequences the locations and returns the accounted route with
// savings against the input order.
func (e *Engine) OptimizeRoute(in OptimizeInput) (model.RouteData, error) {
	if len(in.Locations) == 0 {
		return model.RouteData{}, model.ErrEmptyRouteRequest
	}
	vehicle, err := e.vehicle(in.VehicleType)
	if err != nil {
		return model.RouteData{}, err
	}
	origin := in.Locations[0].Point()
	if in.Origin != nil {
		origin = *in.Origin
	}
	if err := geo.Validate(origin); err != nil {
		return model.RouteData{}, err
	}
	for _, l := range in.Locations {
		if err := geo.Validate(l.Point()); err != nil {
			var me *model.Error
			if errors.As(err, &me) {
				return model.RouteData{}, model.Errorf(me.Code, "location %q: %s", l.ID, me.Message)
			}
			return model.RouteData{}, err
		}
	}
	cons := opt.Constraints{RespectPrecedence: true, Collected: in.Collected}
	if in.RespectPickupDeliveryOrder != nil {
		cons.RespectPrecedence = *in.RespectPickupDeliveryOrder
	}
	prec, err := opt.BuildPrecedence(in.Locations, cons)
	if err != nil {
		return model.RouteData{}, err
	}
	algo := in.Algorithm
	if algo == "" {
		algo = e.opts.Algorithm
	}
	solver, err := opt.SolverFor(algo, e.opts.MaxExactStops)
	if err != nil {
		return model.RouteData{}, err
	}
	start := e.at(in.DepartAt)
	costs := vehicleCosts{e: e, vehicle: vehicle}
	res, err := opt.Solve(solver, opt.Problem{
		Origin:     origin,
		Locations:  in.Locations,
		Precedence: prec,
		Start:      start,
		Costs:      costs,
	})
	if err != nil {
		return model.RouteData{}, err
	}
	stops, tot, err := opt.Accumulate(costs, origin, opt.Reorder(in.Locations, res.Order), start)
	if err != nil {
		return model.RouteData{}, err
	}
	return model.RouteData{
		DriverLocation: origin,
		Stops:          stops,
		TotalDistance:  tot.DistanceKm,
		TotalDuration:  tot.DurationMin,
		Savings:        opt.ComputeSavings(res.Naive, tot),
		OrderCount:     countOrders(in.Locations),
		Algorithm:      res.Algorithm,
		VehicleType:    vehicle,
		ComputedAt:     start.UTC(),
	}, nil
}

func countOrders(locs []model.Location) int {
	seen := map[string]struct{}{}
	for _, l := range locs {
		if l.OrderID != "" {
			seen[l.OrderID] = struct{}{}
		}
	}
	return len(seen)
}

// ETAInput is one CalculateETA request.
type ETAInput struct {
	From, To    model.Coordinate
	VehicleType string
	DepartAt    *time.Time
}

// CalculateETA estimates a single traffic-adjusted trip.
func (e *Engine) CalculateETA(in ETAInput) (model.ETAData, error) {
	vehicle, err := e.vehicle(in.VehicleType)
	if err != nil {
		return model.ETAData{}, err
	}
	start := e.at(in.DepartAt)
	edge, err := vehicleCosts{e: e, vehicle: vehicle}.Edge(in.From, in.To, start)
	if err != nil {
		return model.ETAData{}, err
	}
	return model.ETAData{
		Distance:          edge.DistanceKm,
		Duration:          edge.AdjustedDurationMin,
		ETA:               addMinutes(start, edge.AdjustedDurationMin).UTC(),
		TrafficMultiplier: edge.TrafficMultiplier,
		TrafficStatus:     e.traffic.Status(edge.TrafficMultiplier),
	}, nil
}

// MaxPrepMin caps merchant preparation time at one day.
const MaxPrepMin = 24 * 60

// EstimateInput is one GetDeliveryEstimate request.
type EstimateInput struct {
	Pickup, Delivery model.Coordinate
	// PrepTimeMin nil uses the default merchant prep time.
	PrepTimeMin *float64
	VehicleType string
	At          *time.Time
}

// DeliveryEstimate composes prep time, transit and handoff for one
// pickup-delivery pair. Transit traffic is read at the time the food is ready.
func (e *Engine) DeliveryEstimate(in EstimateInput) (model.DeliveryEstimate, error) {
	prep := e.opts.DefaultPrepMin
	if in.PrepTimeMin != nil {
		prep = *in.PrepTimeMin
	}
	// The negated form also rejects NaN.
	if !(prep >= 0 && prep <= MaxPrepMin) {
		return model.DeliveryEstimate{}, model.Errorf(model.CodeInvalidRequest, "prepTime must be within [0, %d] minutes, got %v", MaxPrepMin, prep)
	}
	vehicle, err := e.vehicle(in.VehicleType)
	if err != nil {
		return model.DeliveryEstimate{}, err
	}
	now := e.at(in.At)
	edge, err := vehicleCosts{e: e, vehicle: vehicle}.Edge(in.Pickup, in.Delivery, addMinutes(now, prep))
	if err != nil {
		return model.DeliveryEstimate{}, err
	}
	total := prep + edge.AdjustedDurationMin + e.opts.HandoffMin
	return model.DeliveryEstimate{
		PickupTime:        prep,
		TransitTime:       edge.AdjustedDurationMin,
		DeliveryTime:      e.opts.HandoffMin,
		TotalTime:         total,
		EstimatedDelivery: addMinutes(now, total).UTC(),
		Distance:          edge.DistanceKm,
		TrafficMultiplier: edge.TrafficMultiplier,
	}, nil
}

// DriverSnapshot is what the store knows about a driver's current work.
type DriverSnapshot struct {
	Driver      model.Driver
	Assignments []model.Assignment
}

// DriverRoute builds the route for a driver's active assignments starting at
// the last reported position. No active assignments yields an empty route.
func (e *Engine) DriverRoute(s DriverSnapshot, at *time.Time) (model.RouteData, error) {
	if s.Driver.Position == nil {
		return model.RouteData{}, model.Errorf(model.CodeDriverLocationUnknown, "driver %q has not reported a position", s.Driver.ID)
	}
	vehicle, err := e.vehicle(string(s.Driver.VehicleType))
	if err != nil {
		return model.RouteData{}, err
	}
	active := make([]model.Assignment, 0, len(s.Assignments))
	for _, a := range s.Assignments {
		if model.IsActiveStatus(a.Status) {
			active = append(active, a)
		}
	}
	if len(active) == 0 {
		return model.RouteData{
			DriverLocation: *s.Driver.Position,
			Stops:          []model.OptimizedStop{},
			VehicleType:    vehicle,
			ComputedAt:     e.at(at).UTC(),
		}, nil
	}
	sort.SliceStable(active, func(i, j int) bool {
		if !active[i].AssignedAt.Equal(active[j].AssignedAt) {
			return active[i].AssignedAt.Before(active[j].AssignedAt)
		}
		return active[i].OrderID < active[j].OrderID
	})
	var locs []model.Location
	collected := map[string]struct{}{}
	for _, a := range active {
		locs = append(locs, a.Stops()...)
		if model.IsCollected(a.Status) {
			collected[a.OrderID] = struct{}{}
		}
	}
	return e.OptimizeRoute(OptimizeInput{
		Origin:      s.Driver.Position,
		Locations:   locs,
		VehicleType: string(vehicle),
		DepartAt:    at,
		Collected:   collected,
	})
}

func addMinutes(t time.Time, min float64) time.Time {
	return t.Add(time.Duration(min * float64(time.Minute)))
}
