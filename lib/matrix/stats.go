package matrix

import "math"

// Stats summarizes the step time samples of one atlas key.
type Stats struct {
	Count        int     `json:"count"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	Mean         float64 `json:"mean"`
	StdDeviation float64 `json:"std_deviation"`
}

// NewStats computes count, minimum, maximum, mean and the population
// standard deviation of values.
func NewStats(values []float64) Stats {
	if len(values) == 0 {
		return Stats{}
	}

	lo, hi := values[0], values[0]
	var sum float64
	for _, v := range values {
		sum += v
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		diff := v - mean
		sq += diff * diff
	}

	return Stats{
		Count:        len(values),
		Min:          lo,
		Max:          hi,
		Mean:         mean,
		StdDeviation: math.Sqrt(sq / float64(len(values))),
	}
}
