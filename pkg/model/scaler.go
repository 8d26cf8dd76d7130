package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Scaler kinds, named after the scikit-learn estimators they reproduce.
const (
	ScalerStandard = "standard"
	ScalerMinMax   = "minmax"
	ScalerRobust   = "robust"
	ScalerMaxAbs   = "maxabs"
)

// Scaler is a fitted feature-normalisation transform.
type Scaler interface {
	// Kind returns one of the Scaler* constants.
	Kind() string
	// NumFeatures is the input width the scaler was fitted on.
	NumFeatures() int
	// Transform returns a scaled copy of x.
	Transform(x []float64) ([]float64, error)
}

// AffineScaler applies y = x*mul + add per feature. Every scikit-learn
// scaler supported here reduces to this form once fitted.
type AffineScaler struct {
	kind string
	mul  *mat.VecDense
	add  *mat.VecDense
}

// NewStandardScaler builds (x - mean) / scale. A nil mean means with_mean=False,
// a nil scale means with_std=False. Zero scale entries are treated as 1, as
// scikit-learn does for constant features.
func NewStandardScaler(mean, scale []float64) (*AffineScaler, error) {
	return centerScale(ScalerStandard, mean, scale)
}

// NewRobustScaler builds (x - center) / scale.
func NewRobustScaler(center, scale []float64) (*AffineScaler, error) {
	return centerScale(ScalerRobust, center, scale)
}

// NewMaxAbsScaler builds x / scale.
func NewMaxAbsScaler(scale []float64) (*AffineScaler, error) {
	return centerScale(ScalerMaxAbs, nil, scale)
}

// NewMinMaxScaler builds x*scale + min using the fitted scale_ and min_ vectors.
func NewMinMaxScaler(min, scale []float64) (*AffineScaler, error) {
	if len(min) == 0 || len(min) != len(scale) {
		return nil, fmt.Errorf("minmax scaler: min has %d values, scale has %d", len(min), len(scale))
	}
	if err := checkFinite("min", min); err != nil {
		return nil, fmt.Errorf("minmax scaler: %w", err)
	}
	if err := checkFinite("scale", scale); err != nil {
		return nil, fmt.Errorf("minmax scaler: %w", err)
	}
	return &AffineScaler{
		kind: ScalerMinMax,
		mul:  mat.NewVecDense(len(scale), append([]float64(nil), scale...)),
		add:  mat.NewVecDense(len(min), append([]float64(nil), min...)),
	}, nil
}

func centerScale(kind string, center, scale []float64) (*AffineScaler, error) {
	n := len(scale)
	if n == 0 {
		n = len(center)
	}
	if n == 0 {
		return nil, fmt.Errorf("%s scaler: no fitted values", kind)
	}
	if center != nil && len(center) != n {
		return nil, fmt.Errorf("%s scaler: center has %d values, want %d", kind, len(center), n)
	}
	if scale != nil && len(scale) != n {
		return nil, fmt.Errorf("%s scaler: scale has %d values, want %d", kind, len(scale), n)
	}
	if err := checkFinite("center", center); err != nil {
		return nil, fmt.Errorf("%s scaler: %w", kind, err)
	}
	if err := checkFinite("scale", scale); err != nil {
		return nil, fmt.Errorf("%s scaler: %w", kind, err)
	}

	mul := make([]float64, n)
	add := make([]float64, n)
	for i := 0; i < n; i++ {
		s := 1.0
		if scale != nil && scale[i] != 0 {
			s = scale[i]
		}
		mul[i] = 1 / s
		if center != nil {
			add[i] = -center[i] / s
		}
	}
	return &AffineScaler{
		kind: kind,
		mul:  mat.NewVecDense(n, mul),
		add:  mat.NewVecDense(n, add),
	}, nil
}

// Kind implements Scaler.
func (s *AffineScaler) Kind() string { return s.kind }

// NumFeatures implements Scaler.
func (s *AffineScaler) NumFeatures() int { return s.mul.Len() }

// Transform implements Scaler.
func (s *AffineScaler) Transform(x []float64) ([]float64, error) {
	n := s.mul.Len()
	if len(x) != n {
		return nil, fmt.Errorf("scaler expects %d features, got %d", n, len(x))
	}
	out := mat.NewVecDense(n, append([]float64(nil), x...))
	out.MulElemVec(out, s.mul)
	out.AddVec(out, s.add)
	return out.RawVector().Data, nil
}

func checkFinite(name string, v []float64) error {
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("%s[%d] is not finite", name, i)
		}
	}
	return nil
}
