package rolling

import (
	"math"
	"sort"
)

// Mean returns the trailing average at every index. Head windows average
// over the elements available so far.
func Mean(seq Sequence, lookback int) []float64 {
	out := make([]float64, seq.Len())
	for i := range out {
		w := seq.Window(i, lookback)
		out[i] = w.Sum() / float64(w.Len())
	}
	return out
}

// StdDev returns the trailing population standard deviation at every index.
// means may carry the output of Mean for the same lookback; nil recomputes it.
func StdDev(seq Sequence, lookback int, means []float64) []float64 {
	if len(means) != seq.Len() {
		means = Mean(seq, lookback)
	}
	out := make([]float64, seq.Len())
	for i := range out {
		w := seq.Window(i, lookback)
		var ss float64
		for j := 0; j < w.Len(); j++ {
			d := w.At(j) - means[i]
			ss += d * d
		}
		out[i] = math.Sqrt(ss / float64(w.Len()))
	}
	return out
}

// ZScore returns (x - mean) / stddev over the trailing window. A zero
// standard deviation yields 0.
func ZScore(seq Sequence, lookback int) []float64 {
	means := Mean(seq, lookback)
	stds := StdDev(seq, lookback, means)
	out := make([]float64, seq.Len())
	for i := range out {
		if stds[i] == 0 {
			continue
		}
		out[i] = (seq.At(i) - means[i]) / stds[i]
	}
	return out
}

// MinMaxScaler maps each element from its window's [min, max] onto
// [scaleMin, scaleMax]. A flat window yields scaleMin.
func MinMaxScaler(seq Sequence, lookback int, scaleMin, scaleMax float64) []float64 {
	out := make([]float64, seq.Len())
	for i := range out {
		lo, hi := seq.Window(i, lookback).MinMax()
		if hi == lo {
			out[i] = scaleMin
			continue
		}
		out[i] = scaleMin + (seq.At(i)-lo)/(hi-lo)*(scaleMax-scaleMin)
	}
	return out
}

// RobustScaler returns (x - Q1) / (Q3 - Q1) over the trailing window. When
// the interquartile range is zero only the Q1 shift is applied.
func RobustScaler(seq Sequence, lookback int) []float64 {
	out := make([]float64, seq.Len())
	for i := range out {
		q1, q3 := Quartiles(seq.Window(i, lookback))
		v := seq.At(i) - q1
		if iqr := q3 - q1; iqr != 0 {
			v /= iqr
		}
		out[i] = v
	}
	return out
}

// Quartiles returns Q1 and Q3 as the medians of the lower and upper halves of
// the sorted window. The middle element of an odd-length window belongs to
// neither half. A single-element window has Q1 == Q3 == that element.
func Quartiles(window Sequence) (q1, q3 float64) {
	sorted := window.Sorted()
	n := len(sorted)
	switch n {
	case 0:
		return 0, 0
	case 1:
		return sorted[0], sorted[0]
	}
	return median(sorted[:n/2]), median(sorted[(n+1)/2:])
}

// median of an already sorted slice; even lengths average the middle pair.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// QuantileAt returns the rank of window element index within the sorted
// window, scaled onto [scaleLow, scaleHigh] as rank/(n-1). Equal values keep
// distinct ranks in window order, so ties are not averaged. A single-element
// window returns the midpoint of the scale.
func QuantileAt(window Sequence, index int, scaleLow, scaleHigh float64) float64 {
	n := window.Len()
	if index < 0 || index >= n {
		panic("rolling: quantile index out of window")
	}
	if n == 1 {
		return scaleLow + (scaleHigh-scaleLow)/2
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return window.At(order[a]) < window.At(order[b])
	})

	rank := 0
	for r, i := range order {
		if i == index {
			rank = r
			break
		}
	}
	return scaleLow + (scaleHigh-scaleLow)*float64(rank)/float64(n-1)
}

// QuantileRank applies QuantileAt to the last element of every trailing window.
func QuantileRank(seq Sequence, lookback int, scaleLow, scaleHigh float64) []float64 {
	out := make([]float64, seq.Len())
	for i := range out {
		w := seq.Window(i, lookback)
		out[i] = QuantileAt(w, w.Len()-1, scaleLow, scaleHigh)
	}
	return out
}
