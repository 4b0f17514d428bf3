package layer

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/floats/scalar"
)

// TestLogSoftmaxStability tests that large logits do not overflow: the
// max-subtraction form must survive values exp() cannot.
func TestLogSoftmaxStability(t *testing.T) {
	for _, backend := range []Backend{Float64Backend{}, Float32Backend{}} {
		v := []float64{1000.0, 1000.5, 999.0}
		backend.LogSoftmax(v)

		if !finite(v) {
			t.Fatalf("%s: log-softmax of large logits is not finite: %v", backend.Name(), v)
		}
		sum := 0.0
		for _, lp := range v {
			sum += math.Exp(lp)
		}
		if !scalar.EqualWithinAbs(sum, 1.0, 1e-6) {
			t.Errorf("%s: probabilities sum to %v, want 1", backend.Name(), sum)
		}
	}
}

// TestLogitsAffine tests the per-group affine kernel against a direct
// computation.
func TestLogitsAffine(t *testing.T) {
	weights := []float64{
		1, 0, 0, // row 0, skipped by row0 offset
		0.5, -1.0, 2.0, // row 1
		1.5, 0.25, -0.5, // row 2
	}
	biases := []float64{0, 0.1, -0.2}
	x := []float64{2.0, 1.0, -1.0}

	dst := make([]float64, 2)
	Float64Backend{}.Logits(dst, weights, biases, 1, 3, x)

	want0 := 0.5*2.0 - 1.0*1.0 + 2.0*-1.0 + 0.1
	want1 := 1.5*2.0 + 0.25*1.0 - 0.5*-1.0 - 0.2
	if !scalar.EqualWithinAbs(dst[0], want0, 1e-12) || !scalar.EqualWithinAbs(dst[1], want1, 1e-12) {
		t.Errorf("Logits = %v, want [%v %v]", dst, want0, want1)
	}
}

// TestFloat32Round tests precision coercion.
func TestFloat32Round(t *testing.T) {
	v := []float64{math.Pi}
	Float32Backend{}.Round(v)
	if v[0] != float64(float32(math.Pi)) {
		t.Errorf("Round = %v, want float32 rounding of pi", v[0])
	}

	// Float64 round is the identity.
	w := []float64{math.Pi}
	Float64Backend{}.Round(w)
	if w[0] != math.Pi {
		t.Errorf("Float64Backend.Round changed %v", w[0])
	}
}

// TestAddScaled tests dst += alpha * x on both backends.
func TestAddScaled(t *testing.T) {
	for _, backend := range []Backend{Float64Backend{}, Float32Backend{}} {
		dst := []float64{1.0, 2.0}
		backend.AddScaled(dst, 0.5, []float64{2.0, -4.0})
		if !scalar.EqualWithinAbs(dst[0], 2.0, 1e-6) || !scalar.EqualWithinAbs(dst[1], 0.0, 1e-6) {
			t.Errorf("%s: AddScaled = %v, want [2 0]", backend.Name(), dst)
		}
	}
}
