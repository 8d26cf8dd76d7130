package model

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rulstack/rulstack/pkg/types"
)

// FormatSequentialV1 identifies the network artifact layout read by LoadNetwork.
const FormatSequentialV1 = "rulstack.sequential/v1"

// NetworkArtifact is the on-disk form of a Network.
type NetworkArtifact struct {
	Format   string          `json:"format,omitempty"`
	Name     string          `json:"name"`
	InputDim int             `json:"input_dim"`
	Layers   []LayerArtifact `json:"layers"`
}

// LayerArtifact is one entry of NetworkArtifact.Layers. Which fields are
// read depends on Kind.
type LayerArtifact struct {
	Kind string `json:"kind"`
	Name string `json:"name,omitempty"`

	// dense
	Activation string      `json:"activation,omitempty"`
	Kernel     [][]float64 `json:"kernel,omitempty"`
	Bias       []float64   `json:"bias,omitempty"`

	// batch_normalization
	Gamma          []float64 `json:"gamma,omitempty"`
	Beta           []float64 `json:"beta,omitempty"`
	MovingMean     []float64 `json:"moving_mean,omitempty"`
	MovingVariance []float64 `json:"moving_variance,omitempty"`
	Epsilon        float64   `json:"epsilon,omitempty"`

	// dropout
	Rate float64 `json:"rate,omitempty"`
}

// ScalerArtifact is the on-disk form of a fitted scaler. Field names follow
// the scikit-learn attribute names with the trailing underscore dropped.
type ScalerArtifact struct {
	Kind           string    `json:"kind"`
	NFeaturesIn    int       `json:"n_features_in,omitempty"`
	FeatureNamesIn []string  `json:"feature_names_in,omitempty"`
	Mean           []float64 `json:"mean,omitempty"`
	Center         []float64 `json:"center,omitempty"`
	Min            []float64 `json:"min,omitempty"`
	Scale          []float64 `json:"scale,omitempty"`
}

// LoadNetwork reads and validates a network artifact.
func LoadNetwork(path string) (*Network, error) {
	var doc NetworkArtifact
	if err := readJSON(path, &doc); err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}
	n, err := doc.Build()
	if err != nil {
		return nil, fmt.Errorf("model %q: %w", path, err)
	}
	return n, nil
}

// Build converts the artifact into a Network.
func (a NetworkArtifact) Build() (*Network, error) {
	if a.Format != "" && a.Format != FormatSequentialV1 {
		return nil, fmt.Errorf("unsupported format %q, want %q", a.Format, FormatSequentialV1)
	}
	width := a.InputDim
	layers := make([]Layer, 0, len(a.Layers))
	for i, la := range a.Layers {
		l, err := la.build(width)
		if err != nil {
			return nil, fmt.Errorf("layer %d (%s): %w", i, la.Name, err)
		}
		layers = append(layers, l)
		width = l.OutputDim()
	}
	return NewNetwork(a.Name, a.InputDim, layers...)
}

func (la LayerArtifact) build(width int) (Layer, error) {
	switch la.Kind {
	case LayerDense:
		return NewDense(la.Kernel, la.Bias, la.Activation)
	case LayerBatchNormalization:
		return NewBatchNormalization(la.Gamma, la.Beta, la.MovingMean, la.MovingVariance, la.Epsilon)
	case LayerDropout:
		if la.Rate < 0 || la.Rate >= 1 {
			return nil, fmt.Errorf("dropout rate %v out of range [0, 1)", la.Rate)
		}
		return NewDropout(width, la.Rate), nil
	default:
		return nil, fmt.Errorf("unsupported layer kind %q", la.Kind)
	}
}

// LoadScaler reads and validates a scaler artifact fitted on the fixed
// feature order in types.FeatureNames.
func LoadScaler(path string) (*AffineScaler, error) {
	var doc ScalerArtifact
	if err := readJSON(path, &doc); err != nil {
		return nil, fmt.Errorf("scaler: %w", err)
	}
	s, err := doc.Build()
	if err != nil {
		return nil, fmt.Errorf("scaler %q: %w", path, err)
	}
	return s, nil
}

// Build converts the artifact into a Scaler and checks it against the
// reading layout.
func (a ScalerArtifact) Build() (*AffineScaler, error) {
	if len(a.FeatureNamesIn) > 0 {
		if len(a.FeatureNamesIn) != types.NumFeatures {
			return nil, fmt.Errorf("fitted on %d features, want %d", len(a.FeatureNamesIn), types.NumFeatures)
		}
		for i, name := range a.FeatureNamesIn {
			if name != types.FeatureNames[i] {
				return nil, fmt.Errorf("feature %d is %q, want %q", i, name, types.FeatureNames[i])
			}
		}
	}

	var (
		s   *AffineScaler
		err error
	)
	switch a.Kind {
	case ScalerStandard:
		s, err = NewStandardScaler(a.Mean, a.Scale)
	case ScalerRobust:
		s, err = NewRobustScaler(a.Center, a.Scale)
	case ScalerMaxAbs:
		s, err = NewMaxAbsScaler(a.Scale)
	case ScalerMinMax:
		s, err = NewMinMaxScaler(a.Min, a.Scale)
	default:
		return nil, fmt.Errorf("unsupported scaler kind %q", a.Kind)
	}
	if err != nil {
		return nil, err
	}
	if s.NumFeatures() != types.NumFeatures {
		return nil, fmt.Errorf("fitted on %d features, want %d", s.NumFeatures(), types.NumFeatures)
	}
	if a.NFeaturesIn != 0 && a.NFeaturesIn != s.NumFeatures() {
		return nil, fmt.Errorf("n_features_in is %d but vectors have %d values", a.NFeaturesIn, s.NumFeatures())
	}
	return s, nil
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %q: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %q: %w", path, err)
	}
	return nil
}
