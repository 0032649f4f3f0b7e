package core

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"

	ex "capm/data/extensions"
)

const (
	// below these the ratio divisors are treated as zero
	betaTolerance     = 1e-9
	stdDevTolerance   = 1e-12
	varianceTolerance = 1e-12

	outlierFence = 1.5
)

// Quantile uses linear interpolation between order statistics (Hyndman-Fan type 7),
// the default for pandas and numpy. values does not need to be sorted and is not modified.
func Quantile[T ex.Number](p float64, values []T) float64 {
	n := len(values)
	if n == 0 {
		return math.NaN()
	}

	sorted := make([]float64, n)
	for i, v := range values {
		sorted[i] = float64(v)
	}
	slices.Sort(sorted)

	if n == 1 {
		return sorted[0]
	}

	h := float64(n-1) * p
	lo := int(math.Floor(h))
	if lo >= n-1 {
		return sorted[n-1]
	}
	if lo < 0 {
		return sorted[0]
	}

	return sorted[lo] + (h-float64(lo))*(sorted[lo+1]-sorted[lo])
}

// IQRBounds returns the Tukey fences Q1 - 1.5*IQR and Q3 + 1.5*IQR
func IQRBounds(values []float64) (lower, upper float64) {
	q1 := Quantile(0.25, values)
	q3 := Quantile(0.75, values)
	iqr := q3 - q1
	return q1 - outlierFence*iqr, q3 + outlierFence*iqr
}

func Mean(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	return stat.Mean(values, nil)
}

// SampleStdDev uses the n-1 denominator, NaN with fewer than 2 values
func SampleStdDev(values []float64) float64 {
	if len(values) < 2 {
		return math.NaN()
	}
	return stat.StdDev(values, nil)
}

// isDegenerate reports whether values have effectively no variance
func isDegenerate(x []float64) bool {
	if len(x) < 2 {
		return true
	}
	_, variance := stat.PopMeanVariance(x, nil)
	return variance < varianceTolerance || math.IsNaN(variance)
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
