package opt

import (
	"fmt"
	"strings"

	"routeeta/internal/model"
)

// Algorithm names accepted by SolverFor.
const (
	AlgoGreedy = "greedy"
	AlgoTwoOpt = "two_opt"
	AlgoExact  = "exact"
)

// Algorithms lists the registered solver names.
var Algorithms = []string{AlgoGreedy, AlgoTwoOpt, AlgoExact}

// SolverFor resolves a solver by name. Empty selects greedy.
func SolverFor(name string, maxExactStops int) (Solver, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", AlgoGreedy:
		return Greedy{}, nil
	case AlgoTwoOpt, "2opt":
		return TwoOpt{}, nil
	case AlgoExact:
		return Exact{MaxStops: maxExactStops}, nil
	default:
		return nil, model.Errorf(model.CodeInvalidRequest, "unknown algorithm %q (allowed: %s)", name, strings.Join(Algorithms, ", "))
	}
}

// Result is a solved route with the naive comparison it was checked against.
type Result struct {
	Order         []int
	Algorithm     string
	Optimized     Totals
	Naive         Totals
	NaiveFeasible bool
}

// Solve runs s and guards against regressions: when the input order is itself
// feasible and beats the solver on distance or duration, the input order wins.
func Solve(s Solver, p Problem) (Result, error) {
	order, err := s.Sequence(p)
	if err != nil {
		return Result{}, err
	}
	if !p.Precedence.Feasible(order) {
		return Result{}, fmt.Errorf("%s returned an infeasible order %v", s.Name(), order)
	}
	tot, err := Evaluate(p, order)
	if err != nil {
		return Result{}, err
	}
	naiveOrder := Identity(len(p.Locations))
	naive, err := Evaluate(p, naiveOrder)
	if err != nil {
		return Result{}, err
	}
	res := Result{
		Order:         order,
		Algorithm:     s.Name(),
		Optimized:     tot,
		Naive:         naive,
		NaiveFeasible: p.Precedence.Feasible(naiveOrder),
	}
	if res.NaiveFeasible && (naive.DistanceKm < tot.DistanceKm-costEpsilon || naive.DurationMin < tot.DurationMin-costEpsilon) {
		res.Order = naiveOrder
		res.Optimized = naive
		res.Algorithm = s.Name() + "+naive"
	}
	return res, nil
}
