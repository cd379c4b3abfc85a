// Package rolling computes windowed statistics over numeric series.
//
// Every windowed function returns one output per input element. Windows at the
// head of a series shrink instead of being padded, so outputs zip 1:1 with the
// series' date axis.
package rolling

import (
	"fmt"
	"sort"
)

// Sequence is a read-only view of values[start:end). Windows share the
// backing array with the sequence they were cut from.
type Sequence struct {
	values []float64
	start  int
	end    int
}

// NewSequence wraps values without copying. Callers must not mutate values
// while the sequence or its windows are in use.
func NewSequence(values []float64) Sequence {
	return Sequence{values: values, start: 0, end: len(values)}
}

// Len returns the number of elements in view.
func (s Sequence) Len() int {
	return s.end - s.start
}

// At returns the i-th element of the view.
func (s Sequence) At(i int) float64 {
	if i < 0 || i >= s.Len() {
		panic(fmt.Sprintf("rolling: index %d out of range [0,%d)", i, s.Len()))
	}
	return s.values[s.start+i]
}

// Slice returns the sub-view [from, to) relative to s.
func (s Sequence) Slice(from, to int) Sequence {
	if from < 0 || to > s.Len() || from > to {
		panic(fmt.Sprintf("rolling: slice [%d,%d) out of range [0,%d)", from, to, s.Len()))
	}
	return Sequence{values: s.values, start: s.start + from, end: s.start + to}
}

// Window returns the trailing window ending at i: elements max(0, i-lookback)
// through i, both inclusive. A negative lookback is treated as zero.
func (s Sequence) Window(i, lookback int) Sequence {
	if lookback < 0 {
		lookback = 0
	}
	from := i - lookback
	if from < 0 {
		from = 0
	}
	return s.Slice(from, i+1)
}

// Values returns a copy of the elements in view.
func (s Sequence) Values() []float64 {
	out := make([]float64, s.Len())
	copy(out, s.values[s.start:s.end])
	return out
}

// Sorted returns a sorted copy of the elements in view.
func (s Sequence) Sorted() []float64 {
	out := s.Values()
	sort.Float64s(out)
	return out
}

// Sum returns the sum of the elements in view.
func (s Sequence) Sum() float64 {
	var sum float64
	for _, v := range s.values[s.start:s.end] {
		sum += v
	}
	return sum
}

// MinMax returns the smallest and largest elements. Both are zero for an
// empty view.
func (s Sequence) MinMax() (lo, hi float64) {
	if s.Len() == 0 {
		return 0, 0
	}
	lo, hi = s.values[s.start], s.values[s.start]
	for _, v := range s.values[s.start+1 : s.end] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}
