package model

import (
	"fmt"
	"math"
)

// Activation is an element-wise transfer function.
type Activation func(float64) float64

const leakyReLUSlope = 0.2

var activations = map[string]Activation{
	"linear": func(x float64) float64 { return x },
	"relu":   func(x float64) float64 { return math.Max(0, x) },
	"relu6":  func(x float64) float64 { return math.Min(math.Max(0, x), 6) },
	"leaky_relu": func(x float64) float64 {
		if x < 0 {
			return leakyReLUSlope * x
		}
		return x
	},
	"sigmoid": sigmoid,
	"hard_sigmoid": func(x float64) float64 {
		return math.Min(math.Max(0, x+3), 6) / 6
	},
	"tanh": math.Tanh,
	"elu": func(x float64) float64 {
		if x < 0 {
			return math.Expm1(x)
		}
		return x
	},
	"selu": func(x float64) float64 {
		const (
			alpha = 1.6732632423543772
			scale = 1.0507009873554805
		)
		if x < 0 {
			return scale * alpha * math.Expm1(x)
		}
		return scale * x
	},
	"softplus": func(x float64) float64 {
		// log(1+e^x) without overflow for large x.
		if x > 30 {
			return x
		}
		return math.Log1p(math.Exp(x))
	},
	"softsign":    func(x float64) float64 { return x / (1 + math.Abs(x)) },
	"swish":       func(x float64) float64 { return x * sigmoid(x) },
	"gelu":        func(x float64) float64 { return 0.5 * x * (1 + math.Erf(x/math.Sqrt2)) },
	"exponential": math.Exp,
}

func init() {
	activations["silu"] = activations["swish"]
}

// LookupActivation resolves a Keras activation name. An empty name is linear.
func LookupActivation(name string) (Activation, error) {
	if name == "" {
		name = "linear"
	}
	fn, ok := activations[name]
	if !ok {
		return nil, fmt.Errorf("unsupported activation %q", name)
	}
	return fn, nil
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
