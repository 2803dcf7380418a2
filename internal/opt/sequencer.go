package opt

import (
	"errors"
	"math"
)

// Solver produces a visiting order for a Problem as a permutation of
// location indices. Solvers are stateless and safe for concurrent use.
type Solver interface {
	Name() string
	Sequence(p Problem) ([]int, error)
}

const costEpsilon = 1e-9

var errNoEligible = errors.New("no eligible stop left")

// Greedy picks the nearest eligible stop by traffic-adjusted duration at each
// step. Ties go to the shorter raw distance, then to the earlier input index.
// Cost is O(n^2) edge evaluations; there is no upper bound on n.
type Greedy struct{}

func (Greedy) Name() string { return "greedy" }

func (Greedy) Sequence(p Problem) ([]int, error) {
	n := len(p.Locations)
	visited := make([]bool, n)
	order := make([]int, 0, n)
	pos := p.Origin
	elapsed := 0.0
	for len(order) < n {
		best := -1
		bestDur, bestDist := math.Inf(1), math.Inf(1)
		at := departure(p.Start, elapsed)
		for i, loc := range p.Locations {
			if visited[i] || !p.Precedence.Eligible(i, visited) {
				continue
			}
			e, err := p.Costs.Edge(pos, loc.Point(), at)
			if err != nil {
				return nil, err
			}
			if better(e.AdjustedDurationMin, e.DistanceKm, bestDur, bestDist) {
				best, bestDur, bestDist = i, e.AdjustedDurationMin, e.DistanceKm
			}
		}
		if best < 0 {
			return nil, errNoEligible
		}
		visited[best] = true
		order = append(order, best)
		pos = p.Locations[best].Point()
		elapsed += bestDur
	}
	return order, nil
}

// better compares (duration, distance) lexicographically with a tolerance.
// Candidates are scanned in input order, so equal costs keep the earlier one.
func better(dur, dist, bestDur, bestDist float64) bool {
	if dur < bestDur-costEpsilon {
		return true
	}
	if dur > bestDur+costEpsilon {
		return false
	}
	return dist < bestDist-costEpsilon
}
