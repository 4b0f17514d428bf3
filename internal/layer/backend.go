package layer

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Backend supplies the numeric kernels the hierarchical softmax layer is
// built from: the per-group affine logits, the stabilized log-softmax,
// and the scaled accumulate used by backprop. Selecting a backend at
// construction replaces runtime dispatch on a precision name; SetBackend
// on the layer migrates storage between backends.
type Backend interface {
	// Name identifies the backend. SetBackend with the same name is a
	// no-op.
	Name() string

	// Logits fills dst[i] with dot(weights row row0+i, x) + biases[row0+i]
	// for a sibling group of len(dst) rows of width in.
	Logits(dst []float64, weights, biases []float64, row0, in int, x []float64)

	// LogSoftmax rewrites v in place as its log-softmax. Implementations
	// must subtract the group maximum before exponentiating.
	LogSoftmax(v []float64)

	// AddScaled computes dst += alpha * x.
	AddScaled(dst []float64, alpha float64, x []float64)

	// Round coerces v to the backend's storage precision in place. Used
	// once when migrating parameters to this backend.
	Round(v []float64)
}

// Float64Backend computes in full float64 precision on the host CPU,
// delegating the inner kernels to gonum.
type Float64Backend struct{}

func (Float64Backend) Name() string { return "cpu64" }

func (Float64Backend) Logits(dst []float64, weights, biases []float64, row0, in int, x []float64) {
	for i := range dst {
		row := (row0 + i) * in
		dst[i] = floats.Dot(weights[row:row+in], x) + biases[row0+i]
	}
}

// LogSoftmax subtracts the log-normalizer from every logit.
// floats.LogSumExp performs the max-subtraction stabilization.
func (Float64Backend) LogSoftmax(v []float64) {
	floats.AddConst(-floats.LogSumExp(v), v)
}

func (Float64Backend) AddScaled(dst []float64, alpha float64, x []float64) {
	floats.AddScaled(dst, alpha, x)
}

func (Float64Backend) Round(v []float64) {}

// Float32Backend computes through the float64 kernels but rounds every
// result and all migrated storage to float32, matching what a
// single-precision accelerator would hold.
type Float32Backend struct{}

func (Float32Backend) Name() string { return "cpu32" }

func (Float32Backend) Logits(dst []float64, weights, biases []float64, row0, in int, x []float64) {
	Float64Backend{}.Logits(dst, weights, biases, row0, in, x)
	Float32Backend{}.Round(dst)
}

func (Float32Backend) LogSoftmax(v []float64) {
	Float64Backend{}.LogSoftmax(v)
	Float32Backend{}.Round(v)
}

func (Float32Backend) AddScaled(dst []float64, alpha float64, x []float64) {
	for i := range dst {
		dst[i] = float64(float32(dst[i] + alpha*x[i]))
	}
}

func (Float32Backend) Round(v []float64) {
	for i := range v {
		v[i] = float64(float32(v[i]))
	}
}

// GetDefaultBackend returns the backend used when none is requested.
func GetDefaultBackend() Backend {
	return Float64Backend{}
}

// finite reports whether every element of v is a finite number.
func finite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
