package opt

import (
	"time"

	"routeeta/internal/model"
)

// Accumulate walks ordered stops from origin and fills in per-stop and
// cumulative distance, duration and arrival time. Metadata is copied from the
// location only when set.
func Accumulate(costs Costs, origin model.Coordinate, ordered []model.Location, start time.Time) ([]model.OptimizedStop, Totals, error) {
	stops := make([]model.OptimizedStop, 0, len(ordered))
	var tot Totals
	pos := origin
	for i, loc := range ordered {
		e, err := costs.Edge(pos, loc.Point(), departure(start, tot.DurationMin))
		if err != nil {
			return nil, Totals{}, err
		}
		tot.DistanceKm += e.DistanceKm
		tot.DurationMin += e.AdjustedDurationMin
		stops = append(stops, model.OptimizedStop{
			Sequence:             i + 1,
			Location:             loc,
			DistanceFromPrevious: e.DistanceKm,
			DurationFromPrevious: e.AdjustedDurationMin,
			CumulativeDistance:   tot.DistanceKm,
			CumulativeDuration:   tot.DurationMin,
			EstimatedArrival:     departure(start, tot.DurationMin).UTC(),
			OrderNumber:          loc.OrderNumber,
			MerchantName:         loc.MerchantName,
			CustomerName:         loc.CustomerName,
		})
		pos = loc.Point()
	}
	return stops, tot, nil
}

// Reorder returns locs permuted by order.
func Reorder(locs []model.Location, order []int) []model.Location {
	out := make([]model.Location, len(order))
	for i, idx := range order {
		out[i] = locs[idx]
	}
	return out
}
