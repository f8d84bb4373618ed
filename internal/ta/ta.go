package ta

import "math"

func SMA(vals []float64, n int) float64 {
	if len(vals) < n || n <= 0 {
		return math.NaN()
	}
	sum := 0.0
	for i := len(vals) - n; i < len(vals); i++ {
		sum += vals[i]
	}
	return sum / float64(n)
}
func StdDev(vals []float64, n int) float64 {
	if len(vals) < n || n <= 0 {
		return math.NaN()
	}
	m := SMA(vals, n)
	s := 0.0
	for i := len(vals) - n; i < len(vals); i++ {
		d := vals[i] - m
		s += d * d
	}
	return math.Sqrt(s / float64(n))
}

// Highest returns the max value and its index; ties keep the earliest.
func Highest(vals []float64) (float64, int) {
	if len(vals) == 0 {
		return math.NaN(), -1
	}
	best, idx := vals[0], 0
	for i, v := range vals[1:] {
		if v > best {
			best, idx = v, i+1
		}
	}
	return best, idx
}

// Lowest returns the min value and its index; ties keep the earliest.
func Lowest(vals []float64) (float64, int) {
	if len(vals) == 0 {
		return math.NaN(), -1
	}
	best, idx := vals[0], 0
	for i, v := range vals[1:] {
		if v < best {
			best, idx = v, i+1
		}
	}
	return best, idx
}
func PctChange(from, to float64) float64 {
	if from == 0 || math.IsNaN(from) || math.IsNaN(to) {
		return math.NaN()
	}
	return (to - from) / from * 100.0
}

// Slope is the least-squares slope of ys over xs.
func Slope(xs, ys []float64) float64 {
	if len(xs) != len(ys) || len(xs) < 2 {
		return math.NaN()
	}
	n := float64(len(xs))
	var sx, sy, sxy, sxx float64
	for i := range xs {
		sx += xs[i]
		sy += ys[i]
		sxy += xs[i] * ys[i]
		sxx += xs[i] * xs[i]
	}
	den := n*sxx - sx*sx
	if den == 0 {
		return math.NaN()
	}
	return (n*sxy - sx*sy) / den
}
