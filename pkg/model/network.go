package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Layer kinds understood by the network loader.
const (
	LayerDense              = "dense"
	LayerBatchNormalization = "batch_normalization"
	LayerDropout            = "dropout"
)

// Layer is one inference-time step of a Network.
type Layer interface {
	Kind() string
	InputDim() int
	OutputDim() int
	// Params is the number of trained parameters held by the layer.
	Params() int
	Forward(x *mat.VecDense) *mat.VecDense
}

// Dense is a fully connected layer: activation(kernelᵀ·x + bias).
type Dense struct {
	kernel     *mat.Dense // input × units, Keras layout
	bias       *mat.VecDense
	activation string
	fn         Activation
}

// NewDense builds a dense layer from a Keras-layout kernel (one row per input,
// one column per unit) and a bias of length units. A nil bias means use_bias=False.
func NewDense(kernel [][]float64, bias []float64, activation string) (*Dense, error) {
	if len(kernel) == 0 || len(kernel[0]) == 0 {
		return nil, fmt.Errorf("dense: empty kernel")
	}
	in, units := len(kernel), len(kernel[0])
	data := make([]float64, 0, in*units)
	for i, row := range kernel {
		if len(row) != units {
			return nil, fmt.Errorf("dense: kernel row %d has %d columns, want %d", i, len(row), units)
		}
		if err := checkFinite(fmt.Sprintf("kernel[%d]", i), row); err != nil {
			return nil, fmt.Errorf("dense: %w", err)
		}
		data = append(data, row...)
	}
	if bias == nil {
		bias = make([]float64, units)
	}
	if len(bias) != units {
		return nil, fmt.Errorf("dense: bias has %d values, want %d", len(bias), units)
	}
	if err := checkFinite("bias", bias); err != nil {
		return nil, fmt.Errorf("dense: %w", err)
	}
	fn, err := LookupActivation(activation)
	if err != nil {
		return nil, fmt.Errorf("dense: %w", err)
	}
	if activation == "" {
		activation = "linear"
	}
	return &Dense{
		kernel:     mat.NewDense(in, units, data),
		bias:       mat.NewVecDense(units, append([]float64(nil), bias...)),
		activation: activation,
		fn:         fn,
	}, nil
}

func (d *Dense) Kind() string { return LayerDense }

func (d *Dense) InputDim() int {
	r, _ := d.kernel.Dims()
	return r
}

func (d *Dense) OutputDim() int { return d.bias.Len() }

func (d *Dense) Params() int {
	r, c := d.kernel.Dims()
	return r*c + c
}

// Activation returns the Keras name of the layer activation.
func (d *Dense) Activation() string { return d.activation }

func (d *Dense) Forward(x *mat.VecDense) *mat.VecDense {
	out := mat.NewVecDense(d.OutputDim(), nil)
	out.MulVec(d.kernel.T(), x)
	out.AddVec(out, d.bias)
	for i := 0; i < out.Len(); i++ {
		out.SetVec(i, d.fn(out.AtVec(i)))
	}
	return out
}

// BatchNormalization applies the frozen moving statistics of a Keras
// BatchNormalization layer: gamma*(x-mean)/sqrt(var+eps) + beta.
type BatchNormalization struct {
	mul *mat.VecDense
	add *mat.VecDense
}

// DefaultBatchNormEpsilon is the Keras default epsilon.
const DefaultBatchNormEpsilon = 1e-3

// NewBatchNormalization folds the four per-unit vectors into one affine step.
// Nil gamma and beta mean scale=False and center=False respectively.
func NewBatchNormalization(gamma, beta, mean, variance []float64, epsilon float64) (*BatchNormalization, error) {
	n := len(mean)
	if n == 0 || len(variance) != n {
		return nil, fmt.Errorf("batch_normalization: moving_mean has %d values, moving_variance has %d", n, len(variance))
	}
	if gamma != nil && len(gamma) != n {
		return nil, fmt.Errorf("batch_normalization: gamma has %d values, want %d", len(gamma), n)
	}
	if beta != nil && len(beta) != n {
		return nil, fmt.Errorf("batch_normalization: beta has %d values, want %d", len(beta), n)
	}
	if epsilon <= 0 {
		epsilon = DefaultBatchNormEpsilon
	}
	mul := make([]float64, n)
	add := make([]float64, n)
	for i := 0; i < n; i++ {
		if variance[i] < 0 {
			return nil, fmt.Errorf("batch_normalization: moving_variance[%d] is negative", i)
		}
		g, b := 1.0, 0.0
		if gamma != nil {
			g = gamma[i]
		}
		if beta != nil {
			b = beta[i]
		}
		mul[i] = g / math.Sqrt(variance[i]+epsilon)
		add[i] = b - mean[i]*mul[i]
	}
	if err := checkFinite("scale", mul); err != nil {
		return nil, fmt.Errorf("batch_normalization: %w", err)
	}
	if err := checkFinite("offset", add); err != nil {
		return nil, fmt.Errorf("batch_normalization: %w", err)
	}
	return &BatchNormalization{
		mul: mat.NewVecDense(n, mul),
		add: mat.NewVecDense(n, add),
	}, nil
}

func (b *BatchNormalization) Kind() string  { return LayerBatchNormalization }
func (b *BatchNormalization) InputDim() int { return b.mul.Len() }
func (b *BatchNormalization) OutputDim() int {
	return b.mul.Len()
}

// Params counts gamma, beta and the two moving statistics.
func (b *BatchNormalization) Params() int { return 4 * b.mul.Len() }

func (b *BatchNormalization) Forward(x *mat.VecDense) *mat.VecDense {
	out := mat.NewVecDense(x.Len(), nil)
	out.MulElemVec(x, b.mul)
	out.AddVec(out, b.add)
	return out
}

// Dropout is the identity at inference time. It is kept so that layer
// listings match the trained architecture.
type Dropout struct {
	width int
	rate  float64
}

func (d *Dropout) Kind() string                          { return LayerDropout }
func (d *Dropout) InputDim() int                         { return d.width }
func (d *Dropout) OutputDim() int                        { return d.width }
func (d *Dropout) Params() int                           { return 0 }
func (d *Dropout) Forward(x *mat.VecDense) *mat.VecDense { return x }

// Network is a sequential stack of layers ending in the regression output.
type Network struct {
	name     string
	inputDim int
	layers   []Layer
}

// NewNetwork checks that consecutive layer widths line up with inputDim.
func NewNetwork(name string, inputDim int, layers ...Layer) (*Network, error) {
	if inputDim <= 0 {
		return nil, fmt.Errorf("network %q: input_dim must be positive", name)
	}
	if len(layers) == 0 {
		return nil, fmt.Errorf("network %q: no layers", name)
	}
	width := inputDim
	for i, l := range layers {
		if l.InputDim() != width {
			return nil, fmt.Errorf("network %q: layer %d (%s) expects %d inputs, previous width is %d",
				name, i, l.Kind(), l.InputDim(), width)
		}
		width = l.OutputDim()
	}
	if width < 1 {
		return nil, fmt.Errorf("network %q: output width is %d", name, width)
	}
	return &Network{name: name, inputDim: inputDim, layers: layers}, nil
}

// Name returns the model name recorded in the artifact.
func (n *Network) Name() string { return n.name }

// InputDim is the width of the input vector.
func (n *Network) InputDim() int { return n.inputDim }

// Layers returns the layer stack. Callers must not modify it.
func (n *Network) Layers() []Layer { return n.layers }

// Params is the total parameter count.
func (n *Network) Params() int {
	total := 0
	for _, l := range n.layers {
		total += l.Params()
	}
	return total
}

// Forward runs one input vector through every layer and returns the output units.
func (n *Network) Forward(x []float64) ([]float64, error) {
	if len(x) != n.inputDim {
		return nil, fmt.Errorf("network %q expects %d inputs, got %d", n.name, n.inputDim, len(x))
	}
	v := mat.NewVecDense(len(x), append([]float64(nil), x...))
	for _, l := range n.layers {
		v = l.Forward(v)
	}
	out := make([]float64, v.Len())
	for i := range out {
		out[i] = v.AtVec(i)
	}
	return out, nil
}

// NewDropout builds an inference-time dropout layer of the given width.
func NewDropout(width int, rate float64) *Dropout {
	return &Dropout{width: width, rate: rate}
}
