package positioning

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"cot-lab/internal/rolling"
)

// Transform names a rolling normalization.
type Transform string

const (
	TransformRaw      Transform = "raw"
	TransformZScore   Transform = "zscore"
	TransformMinMax   Transform = "minmax"
	TransformRobust   Transform = "robust"
	TransformQuantile Transform = "quantile"
)

// DefaultLookback is three years of weekly reports.
const DefaultLookback = 156

var validate = validator.New()

// OscillatorSpec configures Oscillator. ScaleLow/ScaleHigh apply to the
// minmax and quantile transforms and default to 0..100.
type OscillatorSpec struct {
	Transform Transform `validate:"required,oneof=raw zscore minmax robust quantile"`
	Lookback  int       `validate:"gte=0"`
	ScaleLow  float64
	ScaleHigh float64
}

func (s OscillatorSpec) withDefaults() OscillatorSpec {
	if s.Lookback == 0 {
		s.Lookback = DefaultLookback
	}
	if s.ScaleLow == 0 && s.ScaleHigh == 0 {
		s.ScaleHigh = 100
	}
	return s
}

// Oscillator applies spec's transform to a series. The result has one point
// per input point with the same dates.
func Oscillator(series *Series, spec OscillatorSpec) (*Series, error) {
	if err := validate.Struct(spec); err != nil {
		return nil, fmt.Errorf("invalid oscillator spec: %w", err)
	}
	spec = spec.withDefaults()

	seq := rolling.NewSequence(series.Values())
	var values []float64
	switch spec.Transform {
	case TransformRaw:
		values = series.Values()
	case TransformZScore:
		values = rolling.ZScore(seq, spec.Lookback)
	case TransformMinMax:
		values = rolling.MinMaxScaler(seq, spec.Lookback, spec.ScaleLow, spec.ScaleHigh)
	case TransformRobust:
		values = rolling.RobustScaler(seq, spec.Lookback)
	case TransformQuantile:
		values = rolling.QuantileRank(seq, spec.Lookback, spec.ScaleLow, spec.ScaleHigh)
	}

	out := *series
	out.Points = make([]Point, len(series.Points))
	for i, p := range series.Points {
		p.Value = values[i]
		out.Points[i] = p
	}
	return &out, nil
}
