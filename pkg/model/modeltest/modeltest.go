// Package modeltest provides small, hand-checkable artifacts for tests of
// packages that depend on a loaded model.
package modeltest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rulstack/rulstack/pkg/model"
	"github.com/rulstack/rulstack/pkg/types"
)

// SumNetwork is a single linear unit with all weights 1 and bias 0.
// Behind an identity scaler it predicts the sum of the reading's fields.
func SumNetwork() model.NetworkArtifact {
	kernel := make([][]float64, types.NumFeatures)
	for i := range kernel {
		kernel[i] = []float64{1}
	}
	return model.NetworkArtifact{
		Format:   model.FormatSequentialV1,
		Name:     "sum",
		InputDim: types.NumFeatures,
		Layers: []model.LayerArtifact{
			{Kind: model.LayerDense, Name: "dense", Activation: "linear", Kernel: kernel, Bias: []float64{0}},
		},
	}
}

// IdentityScaler is a standard scaler with zero mean and unit scale.
func IdentityScaler() model.ScalerArtifact {
	mean := make([]float64, types.NumFeatures)
	scale := make([]float64, types.NumFeatures)
	for i := range scale {
		scale[i] = 1
	}
	return model.ScalerArtifact{
		Kind:           model.ScalerStandard,
		NFeaturesIn:    types.NumFeatures,
		FeatureNamesIn: append([]string(nil), types.FeatureNames[:]...),
		Mean:           mean,
		Scale:          scale,
	}
}

// SumEngine returns an Engine whose prediction is the sum of the inputs.
func SumEngine(t testing.TB) *model.Engine {
	t.Helper()
	net, err := SumNetwork().Build()
	if err != nil {
		t.Fatalf("build network: %v", err)
	}
	sc, err := IdentityScaler().Build()
	if err != nil {
		t.Fatalf("build scaler: %v", err)
	}
	eng, err := model.NewEngine(sc, net)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return eng
}

// OverflowEngine returns an Engine whose output is exp(sum of inputs). Any
// realistic reading, SampleReading included, overflows to +Inf and is
// rejected with model.ErrNonFinite.
func OverflowEngine(t testing.TB) *model.Engine {
	t.Helper()
	art := SumNetwork()
	art.Name = "overflow"
	art.Layers[0].Activation = "exponential"
	net, err := art.Build()
	if err != nil {
		t.Fatalf("build network: %v", err)
	}
	sc, err := IdentityScaler().Build()
	if err != nil {
		t.Fatalf("build scaler: %v", err)
	}
	eng, err := model.NewEngine(sc, net)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return eng
}

// WriteArtifacts writes net and sc as JSON files into dir and returns their paths.
func WriteArtifacts(t testing.TB, dir string, net model.NetworkArtifact, sc model.ScalerArtifact) (modelPath, scalerPath string) {
	t.Helper()
	modelPath = filepath.Join(dir, "rul-model.json")
	scalerPath = filepath.Join(dir, "scaler.json")
	writeJSON(t, modelPath, net)
	writeJSON(t, scalerPath, sc)
	return modelPath, scalerPath
}

// SampleReading is a plausible cycle summary; its field sum is about 25566.742.
func SampleReading() types.Reading {
	return types.Reading{
		CycleIndex:          12,
		DischargeTime:       2595.3,
		Decrement:           1151.49,
		MaxVoltageDischarge: 3.67,
		MinVoltageDcharge:   3.211,
		TimeAt415:           5460.001,
		TimeConstantCurrent: 6755.01,
		ChargingTime:        9586.06,
	}
}

// SampleSum is the SumEngine prediction for SampleReading.
const SampleSum = 12 + 2595.3 + 1151.49 + 3.67 + 3.211 + 5460.001 + 6755.01 + 9586.06

func writeJSON(t testing.TB, path string, v interface{}) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
