// Package indicators computes series-shaped technical indicators over
// pre-loaded price columns. Warm-up positions are NaN.
package indicators

import "math"

// SMA returns the simple moving average with the given period. The first
// period-1 entries are NaN.
func SMA(xs []float64, period int) []float64 {
	out := nanSlice(len(xs))
	if period <= 0 || len(xs) < period {
		return out
	}
	sum := 0.0
	for i, x := range xs {
		sum += x
		if i >= period {
			sum -= xs[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMA returns the exponential moving average, seeded with the SMA of the
// first period values.
func EMA(xs []float64, period int) []float64 {
	out := nanSlice(len(xs))
	if period <= 0 || len(xs) < period {
		return out
	}
	seed := 0.0
	for _, x := range xs[:period] {
		seed += x
	}
	out[period-1] = seed / float64(period)
	k := 2.0 / float64(period+1)
	for i := period; i < len(xs); i++ {
		out[i] = xs[i]*k + out[i-1]*(1-k)
	}
	return out
}

// RollingStd returns the rolling population standard deviation.
func RollingStd(xs []float64, period int) []float64 {
	out := nanSlice(len(xs))
	if period <= 0 || len(xs) < period {
		return out
	}
	for i := period - 1; i < len(xs); i++ {
		win := xs[i-period+1 : i+1]
		mean := 0.0
		for _, x := range win {
			mean += x
		}
		mean /= float64(period)
		v := 0.0
		for _, x := range win {
			d := x - mean
			v += d * d
		}
		out[i] = math.Sqrt(v / float64(period))
	}
	return out
}

// Shift delays a series by n bars, filling the head with NaN. Strategies use
// it to reference only values known before the bar opens.
func Shift(xs []float64, n int) []float64 {
	out := nanSlice(len(xs))
	for i := n; i < len(xs); i++ {
		out[i] = xs[i-n]
	}
	return out
}

// Crossover reports whether a crossed above b at index i.
func Crossover(a, b []float64, i int) bool {
	if i < 1 || anyNaN(a[i-1], b[i-1], a[i], b[i]) {
		return false
	}
	return a[i-1] <= b[i-1] && a[i] > b[i]
}

// Crossunder reports whether a crossed below b at index i.
func Crossunder(a, b []float64, i int) bool {
	if i < 1 || anyNaN(a[i-1], b[i-1], a[i], b[i]) {
		return false
	}
	return a[i-1] >= b[i-1] && a[i] < b[i]
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func anyNaN(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}
