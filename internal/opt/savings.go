package opt

import "routeeta/internal/model"

// ComputeSavings compares the naive input-order route with the optimized one.
// Negative differences are reported as zero.
func ComputeSavings(naive, optimized Totals) model.Savings {
	s := model.Savings{
		DistanceSaved: nonNegative(naive.DistanceKm - optimized.DistanceKm),
		TimeSaved:     nonNegative(naive.DurationMin - optimized.DurationMin),
	}
	if naive.DistanceKm > 0 {
		s.PercentageSaved = s.DistanceSaved / naive.DistanceKm * 100
	}
	return s
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
