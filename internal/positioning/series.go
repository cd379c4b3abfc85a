// Package positioning turns weekly observations into per-category position
// series and oscillators for charting.
package positioning

import (
	"fmt"
	"sort"

	"cot-lab/internal/domain"
)

// Measure selects which quantity of a trader category to extract.
type Measure string

const (
	MeasureLong     Measure = "long"
	MeasureShort    Measure = "short"
	MeasureNet      Measure = "net"        // long - short
	MeasureNetPctOI Measure = "net_pct_oi" // (long - short) / open interest * 100
	MeasureOpenInt  Measure = "open_interest"
)

// ParseMeasure converts a string into a Measure.
func ParseMeasure(s string) (Measure, error) {
	switch m := Measure(s); m {
	case MeasureLong, MeasureShort, MeasureNet, MeasureNetPctOI, MeasureOpenInt:
		return m, nil
	}
	return "", fmt.Errorf("unknown measure %q", s)
}

// Point is one dated value.
type Point struct {
	Date        string  `json:"date"`
	TimestampMs int64   `json:"timestamp_ms"`
	Value       float64 `json:"value"`
}

// Series is a dated value sequence, ascending by date.
type Series struct {
	ReportType domain.ReportType `json:"report_type"`
	MarketCode string            `json:"market_code"`
	Category   string            `json:"category,omitempty"`
	Measure    Measure           `json:"measure"`
	Points     []Point           `json:"points"`
}

// Values returns the series values in date order.
func (s *Series) Values() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Value
	}
	return out
}

// Extract builds one series from observations of a single instrument and
// report type. category is ignored for MeasureOpenInt.
func Extract(observations []*domain.Observation, category string, measure Measure) (*Series, error) {
	if len(observations) == 0 {
		return &Series{Category: category, Measure: measure, Points: []Point{}}, nil
	}

	first := observations[0]
	if measure != MeasureOpenInt {
		if _, ok := first.ReportType.Schema().Category(category); !ok {
			return nil, fmt.Errorf("report type %s has no trader category %q", first.ReportType, category)
		}
	}

	sorted := make([]*domain.Observation, len(observations))
	copy(sorted, observations)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].TimestampMs < sorted[j].TimestampMs
	})

	s := &Series{
		ReportType: first.ReportType,
		MarketCode: first.MarketCode,
		Category:   category,
		Measure:    measure,
		Points:     make([]Point, 0, len(sorted)),
	}

	for _, o := range sorted {
		if o.ReportType != first.ReportType || o.MarketCode != first.MarketCode {
			return nil, fmt.Errorf("mixed series: %s/%s and %s/%s", first.ReportType, first.MarketCode, o.ReportType, o.MarketCode)
		}
		v, err := value(o, category, measure)
		if err != nil {
			return nil, err
		}
		s.Points = append(s.Points, Point{
			Date:        o.Date().String(),
			TimestampMs: o.TimestampMs,
			Value:       v,
		})
	}

	return s, nil
}

func value(o *domain.Observation, category string, measure Measure) (float64, error) {
	if measure == MeasureOpenInt {
		return o.OpenInterest(), nil
	}

	long, short, err := o.Positions(category)
	if err != nil {
		return 0, err
	}

	switch measure {
	case MeasureLong:
		return long, nil
	case MeasureShort:
		return short, nil
	case MeasureNet:
		return long - short, nil
	case MeasureNetPctOI:
		oi := o.OpenInterest()
		if oi == 0 {
			return 0, nil
		}
		return (long - short) / oi * 100, nil
	}
	return 0, fmt.Errorf("unknown measure %q", measure)
}
