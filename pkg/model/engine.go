package model

import (
	"errors"
	"fmt"
	"math"

	"github.com/rulstack/rulstack/pkg/types"
)

// ErrNonFinite is returned when the network output is NaN or ±Inf.
var ErrNonFinite = errors.New("model produced a non-finite prediction")

// Engine pairs a fitted scaler with the network it was trained for.
type Engine struct {
	scaler Scaler
	net    *Network
}

// Info summarises the loaded artifacts for GET /api/v1/model and rulctl inspect.
type Info struct {
	Model    string      `json:"model"`
	InputDim int         `json:"input_dim"`
	Params   int         `json:"params"`
	Layers   []LayerInfo `json:"layers"`
	Scaler   string      `json:"scaler"`
	Features []string    `json:"features"`
}

// LayerInfo describes one layer in Info.
type LayerInfo struct {
	Kind       string `json:"kind"`
	Units      int    `json:"units"`
	Activation string `json:"activation,omitempty"`
	Params     int    `json:"params"`
}

// NewEngine checks that the scaler output width matches the network input.
func NewEngine(s Scaler, n *Network) (*Engine, error) {
	if s == nil || n == nil {
		return nil, errors.New("engine: scaler and network are required")
	}
	if s.NumFeatures() != n.InputDim() {
		return nil, fmt.Errorf("engine: scaler has %d features, network %q expects %d",
			s.NumFeatures(), n.Name(), n.InputDim())
	}
	return &Engine{scaler: s, net: n}, nil
}

// Load reads both artifacts and builds an Engine for the fixed reading layout.
func Load(modelPath, scalerPath string) (*Engine, error) {
	net, err := LoadNetwork(modelPath)
	if err != nil {
		return nil, err
	}
	if net.InputDim() != types.NumFeatures {
		return nil, fmt.Errorf("model %q: input_dim is %d, want %d", modelPath, net.InputDim(), types.NumFeatures)
	}
	sc, err := LoadScaler(scalerPath)
	if err != nil {
		return nil, err
	}
	return NewEngine(sc, net)
}

// Predict scales x and returns the first output unit of the network.
func (e *Engine) Predict(x []float64) (float64, error) {
	scaled, err := e.scaler.Transform(x)
	if err != nil {
		return 0, err
	}
	out, err := e.net.Forward(scaled)
	if err != nil {
		return 0, err
	}
	y := out[0]
	if math.IsNaN(y) || math.IsInf(y, 0) {
		return 0, ErrNonFinite
	}
	return y, nil
}

// PredictReading is Predict on r.Vector().
func (e *Engine) PredictReading(r types.Reading) (float64, error) {
	return e.Predict(r.Vector())
}

// Info returns a summary of the loaded artifacts.
func (e *Engine) Info() Info {
	info := Info{
		Model:    e.net.Name(),
		InputDim: e.net.InputDim(),
		Params:   e.net.Params(),
		Scaler:   e.scaler.Kind(),
		Features: append([]string(nil), types.FeatureNames[:]...),
	}
	for _, l := range e.net.Layers() {
		li := LayerInfo{Kind: l.Kind(), Units: l.OutputDim(), Params: l.Params()}
		if d, ok := l.(*Dense); ok {
			li.Activation = d.Activation()
		}
		info.Layers = append(info.Layers, li)
	}
	return info
}
