// Package opt sequences pickup and delivery stops into a single driver route.
package opt

import (
	"time"

	"routeeta/internal/model"
)

// Costs prices travel between two points for a departure at a given time.
type Costs interface {
	Edge(from, to model.Coordinate, at time.Time) (model.Edge, error)
}

// Constraints control precedence handling for one request.
type Constraints struct {
	// RespectPrecedence requires every delivery to follow its order's pickup.
	RespectPrecedence bool
	// Collected holds order ids whose pickup already happened; their
	// deliveries are eligible from the start.
	Collected map[string]struct{}
}

// Problem is one sequencing request. Locations keep their input order; solvers
// return permutations of their indices.
type Problem struct {
	Origin     model.Coordinate
	Locations  []model.Location
	Precedence Precedence
	Start      time.Time
	Costs      Costs
}

// Totals summarizes a walked route.
type Totals struct {
	DistanceKm  float64
	DurationMin float64
}

// Precedence stores, per location index, the index of the pickup it depends
// on, or -1 when the location is always eligible.
type Precedence struct {
	dependsOn []int
}

// BuildPrecedence validates the stop set and builds the orderId -> pickup
// index table once for the request.
func BuildPrecedence(locs []model.Location, cons Constraints) (Precedence, error) {
	if len(locs) == 0 {
		return Precedence{}, model.ErrEmptyRouteRequest
	}
	p := Precedence{dependsOn: make([]int, len(locs))}
	pickupIndex := make(map[string]int, len(locs))
	for i, l := range locs {
		p.dependsOn[i] = -1
		switch l.Kind {
		case model.KindPickup:
			if l.OrderID == "" {
				continue
			}
			if prev, dup := pickupIndex[l.OrderID]; dup && cons.RespectPrecedence {
				return Precedence{}, model.Errorf(model.CodeInvalidRequest, "order %q has two pickups (locations %q and %q)", l.OrderID, locs[prev].ID, l.ID)
			}
			pickupIndex[l.OrderID] = i
		case model.KindDelivery:
		default:
			return Precedence{}, model.Errorf(model.CodeInvalidRequest, "location %q has kind %q, want pickup or delivery", l.ID, l.Kind)
		}
	}
	if !cons.RespectPrecedence {
		return p, nil
	}
	for i, l := range locs {
		if l.Kind != model.KindDelivery {
			continue
		}
		if _, ok := cons.Collected[l.OrderID]; ok && l.OrderID != "" {
			continue
		}
		if l.OrderID == "" {
			return Precedence{}, model.Errorf(model.CodeUnpairedDelivery, "delivery %q has no orderId", l.ID)
		}
		pi, ok := pickupIndex[l.OrderID]
		if !ok {
			return Precedence{}, model.Errorf(model.CodeUnpairedDelivery, "delivery %q: no pickup for order %q", l.ID, l.OrderID)
		}
		p.dependsOn[i] = pi
	}
	return p, nil
}

// Eligible reports whether location i may be visited given visited.
func (p Precedence) Eligible(i int, visited []bool) bool {
	d := p.dependsOn[i]
	return d < 0 || visited[d]
}

// Feasible reports whether order is a permutation of all locations that
// visits every pickup before its dependent deliveries.
func (p Precedence) Feasible(order []int) bool {
	if len(order) != len(p.dependsOn) {
		return false
	}
	visited := make([]bool, len(p.dependsOn))
	for _, i := range order {
		if i < 0 || i >= len(visited) || visited[i] || !p.Eligible(i, visited) {
			return false
		}
		visited[i] = true
	}
	return true
}

// Identity is the input order.
func Identity(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// Evaluate walks order from the origin and returns its totals. Traffic is
// evaluated at each edge's projected departure time.
func Evaluate(p Problem, order []int) (Totals, error) {
	var t Totals
	pos := p.Origin
	for _, i := range order {
		next := p.Locations[i].Point()
		e, err := p.Costs.Edge(pos, next, departure(p.Start, t.DurationMin))
		if err != nil {
			return Totals{}, err
		}
		t.DistanceKm += e.DistanceKm
		t.DurationMin += e.AdjustedDurationMin
		pos = next
	}
	return t, nil
}

func departure(start time.Time, elapsedMin float64) time.Time {
	return start.Add(time.Duration(elapsedMin * float64(time.Minute)))
}
