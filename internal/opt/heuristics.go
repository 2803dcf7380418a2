package opt

// TwoOpt seeds with Greedy and then applies segment reversals that keep
// pickups ahead of their deliveries. A move is kept only when it shortens the
// route without making it slower.
type TwoOpt struct {
	// MaxPasses bounds the improvement loop; zero means 50.
	MaxPasses int
}

func (TwoOpt) Name() string { return "two_opt" }

func (t TwoOpt) Sequence(p Problem) ([]int, error) {
	seed, err := Greedy{}.Sequence(p)
	if err != nil {
		return nil, err
	}
	return ImproveOrder2Opt(p, seed, t.MaxPasses)
}

// ImproveOrder2Opt applies 2-opt to order. The origin stays fixed as the first
// node and the route is open, so the last stop may move too.
func ImproveOrder2Opt(p Problem, order []int, passes int) ([]int, error) {
	if passes <= 0 {
		passes = 50
	}
	best := append([]int(nil), order...)
	bestTot, err := Evaluate(p, best)
	if err != nil {
		return nil, err
	}
	n := len(best)
	for it := 0; it < passes; it++ {
		improved := false
		for i := 0; i < n-1; i++ {
			for k := i + 1; k < n; k++ {
				cand := twoOptSwap(best, i, k)
				if !p.Precedence.Feasible(cand) {
					continue
				}
				tot, err := Evaluate(p, cand)
				if err != nil {
					return nil, err
				}
				if tot.DistanceKm+costEpsilon < bestTot.DistanceKm && tot.DurationMin <= bestTot.DurationMin+costEpsilon {
					best, bestTot = cand, tot
					improved = true
				}
			}
		}
		if !improved {
			break
		}
	}
	return best, nil
}

func twoOptSwap(ord []int, i, k int) []int {
	out := make([]int, len(ord))
	copy(out, ord[:i])
	pos := i
	for j := k; j >= i; j-- {
		out[pos] = ord[j]
		pos++
	}
	copy(out[pos:], ord[k+1:])
	return out
}
