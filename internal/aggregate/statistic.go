package aggregate

import (
	"fmt"
	"math"
	"slices"
	"strings"
)

// Statistic reduces one field's values for one day. It reports false when
// there is nothing to reduce. Callers pass only finite values.
type Statistic func(values []float64) (float64, bool)

// Mean is the arithmetic average.
func Mean(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values)), true
}

// Median is the middle value, or the average of the two middle values for an
// even count. The input is not modified.
func Median(values []float64) (float64, bool) {
	n := len(values)
	if n == 0 {
		return 0, false
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	if n%2 == 1 {
		return sorted[n/2], true
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2, true
}

// ByName resolves "mean" or "median".
func ByName(name string) (Statistic, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "mean", "avg", "average":
		return Mean, nil
	case "median", "":
		return Median, nil
	default:
		return nil, fmt.Errorf("unknown statistic %q", name)
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
