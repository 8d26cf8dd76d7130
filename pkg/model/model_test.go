package model_test

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rulstack/rulstack/pkg/model"
	"github.com/rulstack/rulstack/pkg/model/modeltest"
	"github.com/rulstack/rulstack/pkg/types"
)

const tol = 1e-9

func TestStandardScaler_Transform(t *testing.T) {
	s, err := model.NewStandardScaler([]float64{1, 2, 3}, []float64{2, 0, 0.5})
	require.NoError(t, err)
	assert.Equal(t, model.ScalerStandard, s.Kind())
	assert.Equal(t, 3, s.NumFeatures())

	got, err := s.Transform([]float64{5, 7, 4})
	require.NoError(t, err)
	// Zero scale is treated as 1.
	assert.InDeltaSlice(t, []float64{2, 5, 2}, got, tol)
}

func TestStandardScaler_WithoutMean(t *testing.T) {
	s, err := model.NewStandardScaler(nil, []float64{4, 8})
	require.NoError(t, err)
	got, err := s.Transform([]float64{2, 2})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.5, 0.25}, got, tol)
}

func TestMinMaxScaler_Transform(t *testing.T) {
	// Fitted on columns ranging [0,10] and [-1,1] into [0,1].
	s, err := model.NewMinMaxScaler([]float64{0, 0.5}, []float64{0.1, 0.5})
	require.NoError(t, err)
	got, err := s.Transform([]float64{5, 1})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.5, 1}, got, tol)
}

func TestRobustAndMaxAbsScalers(t *testing.T) {
	r, err := model.NewRobustScaler([]float64{10}, []float64{5})
	require.NoError(t, err)
	got, err := r.Transform([]float64{20})
	require.NoError(t, err)
	assert.InDelta(t, 2.0, got[0], tol)

	m, err := model.NewMaxAbsScaler([]float64{4})
	require.NoError(t, err)
	got, err = m.Transform([]float64{-2})
	require.NoError(t, err)
	assert.InDelta(t, -0.5, got[0], tol)
}

func TestScaler_Errors(t *testing.T) {
	_, err := model.NewStandardScaler([]float64{1, 2}, []float64{1})
	assert.Error(t, err, "length mismatch")

	_, err = model.NewMinMaxScaler([]float64{math.NaN()}, []float64{1})
	assert.Error(t, err, "non-finite min")

	s, err := model.NewStandardScaler([]float64{0, 0}, []float64{1, 1})
	require.NoError(t, err)
	_, err = s.Transform([]float64{1, 2, 3})
	assert.Error(t, err, "wrong input width")
}

func TestScaler_DoesNotModifyInput(t *testing.T) {
	s, err := model.NewStandardScaler([]float64{1}, []float64{2})
	require.NoError(t, err)
	in := []float64{3}
	_, err = s.Transform(in)
	require.NoError(t, err)
	assert.Equal(t, []float64{3}, in)
}

func TestActivations(t *testing.T) {
	cases := []struct {
		name string
		x    float64
		want float64
	}{
		{"", -2, -2},
		{"linear", 3, 3},
		{"relu", -1, 0},
		{"relu", 2.5, 2.5},
		{"relu6", 9, 6},
		{"leaky_relu", -10, -2},
		{"sigmoid", 0, 0.5},
		{"hard_sigmoid", 0, 0.5},
		{"hard_sigmoid", 4, 1},
		{"tanh", 0, 0},
		{"elu", 0, 0},
		{"elu", -1, math.Exp(-1) - 1},
		{"selu", 1, 1.0507009873554805},
		{"softplus", 0, math.Ln2},
		{"softplus", 100, 100},
		{"softsign", 1, 0.5},
		{"swish", 0, 0},
		{"silu", 1, 1 / (1 + math.Exp(-1))},
		{"gelu", 0, 0},
		{"exponential", 1, math.E},
	}
	for _, tc := range cases {
		fn, err := model.LookupActivation(tc.name)
		require.NoError(t, err, tc.name)
		assert.InDelta(t, tc.want, fn(tc.x), 1e-12, "%s(%v)", tc.name, tc.x)
	}

	_, err := model.LookupActivation("mish")
	assert.Error(t, err)
}

func TestNetwork_DenseForward(t *testing.T) {
	d, err := model.NewDense([][]float64{{1, 2}, {3, 4}}, []float64{0.5, -1}, "relu")
	require.NoError(t, err)
	assert.Equal(t, 2, d.InputDim())
	assert.Equal(t, 2, d.OutputDim())
	assert.Equal(t, 6, d.Params())

	n, err := model.NewNetwork("tiny", 2, d)
	require.NoError(t, err)

	out, err := n.Forward([]float64{1, 1})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{4.5, 5}, out, tol)

	out, err = n.Forward([]float64{-1, -1})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0, 0}, out, tol)

	_, err = n.Forward([]float64{1})
	assert.Error(t, err)
}

func TestNetwork_BatchNormAndDropout(t *testing.T) {
	d, err := model.NewDense([][]float64{{1}}, nil, "linear")
	require.NoError(t, err)
	bn, err := model.NewBatchNormalization([]float64{2}, []float64{1}, []float64{3}, []float64{4}, 1e-12)
	require.NoError(t, err)

	n, err := model.NewNetwork("bn", 1, d, model.NewDropout(1, 0.2), bn)
	require.NoError(t, err)
	// Dense 1x1 with implicit zero bias, dropout, batch norm.
	assert.Equal(t, 2+4, n.Params())

	// 2*(7-3)/sqrt(4) + 1 = 5
	out, err := n.Forward([]float64{7})
	require.NoError(t, err)
	assert.InDelta(t, 5.0, out[0], 1e-9)
}

func TestNewNetwork_WidthMismatch(t *testing.T) {
	a, err := model.NewDense([][]float64{{1, 1, 1}, {1, 1, 1}}, nil, "relu")
	require.NoError(t, err)
	b, err := model.NewDense([][]float64{{1}, {1}}, nil, "linear")
	require.NoError(t, err)

	_, err = model.NewNetwork("bad", 2, a, b)
	assert.ErrorContains(t, err, "expects 2 inputs, previous width is 3")

	_, err = model.NewNetwork("empty", 2)
	assert.Error(t, err)
}

func TestNewDense_Errors(t *testing.T) {
	_, err := model.NewDense(nil, nil, "relu")
	assert.Error(t, err)
	_, err = model.NewDense([][]float64{{1, 2}, {3}}, nil, "relu")
	assert.Error(t, err)
	_, err = model.NewDense([][]float64{{1}}, []float64{1, 2}, "relu")
	assert.Error(t, err)
	_, err = model.NewDense([][]float64{{1}}, nil, "mish")
	assert.Error(t, err)
}

func TestLoad_Sum(t *testing.T) {
	mp, sp := modeltest.WriteArtifacts(t, t.TempDir(), modeltest.SumNetwork(), modeltest.IdentityScaler())
	eng, err := model.Load(mp, sp)
	require.NoError(t, err)

	got, err := eng.PredictReading(modeltest.SampleReading())
	require.NoError(t, err)
	assert.InDelta(t, modeltest.SampleSum, got, 1e-6)

	info := eng.Info()
	assert.Equal(t, "sum", info.Model)
	assert.Equal(t, types.NumFeatures, info.InputDim)
	assert.Equal(t, 9, info.Params)
	assert.Equal(t, model.ScalerStandard, info.Scaler)
	require.Len(t, info.Layers, 1)
	assert.Equal(t, "linear", info.Layers[0].Activation)
	assert.Equal(t, types.FeatureNames[:], info.Features)
}

func TestLoad_ScaledHiddenLayer(t *testing.T) {
	// mean 1, scale 2 on every feature; hidden relu layer of 2 units
	// (sum, -sum) followed by a linear unit weighting them 1 and -1.
	sc := modeltest.IdentityScaler()
	for i := range sc.Mean {
		sc.Mean[i] = 1
		sc.Scale[i] = 2
	}
	hidden := make([][]float64, types.NumFeatures)
	for i := range hidden {
		hidden[i] = []float64{1, -1}
	}
	net := model.NetworkArtifact{
		Name:     "mlp",
		InputDim: types.NumFeatures,
		Layers: []model.LayerArtifact{
			{Kind: model.LayerDense, Activation: "relu", Kernel: hidden, Bias: []float64{0, 0}},
			{Kind: model.LayerDropout, Rate: 0.1},
			{Kind: model.LayerDense, Kernel: [][]float64{{1}, {-1}}, Bias: []float64{10}},
		},
	}
	mp, sp := modeltest.WriteArtifacts(t, t.TempDir(), net, sc)
	eng, err := model.Load(mp, sp)
	require.NoError(t, err)

	// Each feature 3 → scaled 1 → hidden (8, 0) → 8 + 10.
	x := []float64{3, 3, 3, 3, 3, 3, 3, 3}
	got, err := eng.Predict(x)
	require.NoError(t, err)
	assert.InDelta(t, 18.0, got, tol)

	// Each feature -1 → scaled -1 → hidden (0, 8) → -8 + 10.
	x = []float64{-1, -1, -1, -1, -1, -1, -1, -1}
	got, err = eng.Predict(x)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, got, tol)
}

func TestLoad_Errors(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*model.NetworkArtifact, *model.ScalerArtifact)
		want   string
	}{
		{"format", func(n *model.NetworkArtifact, _ *model.ScalerArtifact) { n.Format = "keras/v3" }, "unsupported format"},
		{"activation", func(n *model.NetworkArtifact, _ *model.ScalerArtifact) { n.Layers[0].Activation = "mish" }, "unsupported activation"},
		{"kind", func(n *model.NetworkArtifact, _ *model.ScalerArtifact) { n.Layers[0].Kind = "conv1d" }, "unsupported layer kind"},
		{"input_dim", func(n *model.NetworkArtifact, _ *model.ScalerArtifact) { n.InputDim = 7 }, "expects 8 inputs"},
		{"feature order", func(_ *model.NetworkArtifact, s *model.ScalerArtifact) {
			s.FeatureNamesIn[0], s.FeatureNamesIn[1] = s.FeatureNamesIn[1], s.FeatureNamesIn[0]
		}, `feature 0 is "discharge_time"`},
		{"scaler kind", func(_ *model.NetworkArtifact, s *model.ScalerArtifact) { s.Kind = "quantile" }, "unsupported scaler kind"},
		{"n_features_in", func(_ *model.NetworkArtifact, s *model.ScalerArtifact) { s.NFeaturesIn = 9 }, "n_features_in is 9"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			net, sc := modeltest.SumNetwork(), modeltest.IdentityScaler()
			tc.mutate(&net, &sc)
			mp, sp := modeltest.WriteArtifacts(t, t.TempDir(), net, sc)
			_, err := model.Load(mp, sp)
			assert.ErrorContains(t, err, tc.want)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	dir := t.TempDir()
	_, err := model.Load(filepath.Join(dir, "nope.json"), filepath.Join(dir, "scaler.json"))
	assert.Error(t, err)
}

func TestEngine_NonFinite(t *testing.T) {
	net := modeltest.SumNetwork()
	net.Layers[0].Activation = "exponential"
	sc := modeltest.IdentityScaler()
	mp, sp := modeltest.WriteArtifacts(t, t.TempDir(), net, sc)
	eng, err := model.Load(mp, sp)
	require.NoError(t, err)

	_, err = eng.Predict([]float64{1e3, 1e3, 1e3, 1e3, 1e3, 1e3, 1e3, 1e3})
	assert.True(t, errors.Is(err, model.ErrNonFinite), "got %v", err)
}

func TestEngine_WrongWidth(t *testing.T) {
	eng := modeltest.SumEngine(t)
	_, err := eng.Predict([]float64{1, 2})
	assert.Error(t, err)
}
