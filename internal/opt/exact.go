package opt

import "routeeta/internal/model"

// DefaultMaxExactStops bounds Exact; 9 stops is at most 9! orderings before pruning.
const DefaultMaxExactStops = 9

// Exact searches all precedence-feasible orders by branch and bound and
// returns the one with the least adjusted duration, ties broken by distance.
// Above MaxStops it returns the TwoOpt order.
type Exact struct {
	MaxStops int
}

func (Exact) Name() string { return "exact" }

func (x Exact) Sequence(p Problem) ([]int, error) {
	limit := x.MaxStops
	if limit <= 0 {
		limit = DefaultMaxExactStops
	}
	seed, err := TwoOpt{}.Sequence(p)
	if err != nil {
		return nil, err
	}
	if len(p.Locations) > limit {
		return seed, nil
	}
	seedTot, err := Evaluate(p, seed)
	if err != nil {
		return nil, err
	}
	s := &bnb{
		p:        p,
		visited:  make([]bool, len(p.Locations)),
		path:     make([]int, 0, len(p.Locations)),
		best:     seed,
		bestDur:  seedTot.DurationMin,
		bestDist: seedTot.DistanceKm,
	}
	if err := s.search(p.Origin, Totals{}); err != nil {
		return nil, err
	}
	return s.best, nil
}

type bnb struct {
	p                 Problem
	visited           []bool
	path              []int
	best              []int
	bestDur, bestDist float64
}

func (s *bnb) search(pos model.Coordinate, acc Totals) error {
	if acc.DurationMin > s.bestDur+costEpsilon {
		return nil
	}
	if len(s.path) == len(s.p.Locations) {
		if better(acc.DurationMin, acc.DistanceKm, s.bestDur, s.bestDist) {
			s.best = append(s.best[:0:0], s.path...)
			s.bestDur, s.bestDist = acc.DurationMin, acc.DistanceKm
		}
		return nil
	}
	at := departure(s.p.Start, acc.DurationMin)
	for i, loc := range s.p.Locations {
		if s.visited[i] || !s.p.Precedence.Eligible(i, s.visited) {
			continue
		}
		e, err := s.p.Costs.Edge(pos, loc.Point(), at)
		if err != nil {
			return err
		}
		s.visited[i] = true
		s.path = append(s.path, i)
		err = s.search(loc.Point(), Totals{
			DistanceKm:  acc.DistanceKm + e.DistanceKm,
			DurationMin: acc.DurationMin + e.AdjustedDurationMin,
		})
		s.path = s.path[:len(s.path)-1]
		s.visited[i] = false
		if err != nil {
			return err
		}
	}
	return nil
}
