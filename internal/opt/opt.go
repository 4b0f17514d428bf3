// Package opt provides optimizers for keyed parameter blocks.
package opt

// Optimizer updates a flat parameter slice from its gradient slice.
type Optimizer interface {
	// Step computes updated parameters: params - lr * gradients.
	// Returns a new slice with updated values.
	Step(params, gradients []float64) []float64

	// StepInPlace updates params in-place: params = params - lr * gradients.
	// This avoids allocations for better performance.
	StepInPlace(params, gradients []float64)
}

// BlockOptimizer updates parameter blocks identified by a stable key.
// The key lets the optimizer keep per-block state (momentum, moments)
// across batches even when each batch touches a different, sparse subset
// of blocks.
type BlockOptimizer interface {
	StepBlock(key int, params, gradients []float64)
}

// SGD (Stochastic Gradient Descent) optimizer.
type SGD struct {
	LearningRate float64
}

// Step computes updated parameters: params - lr * gradients
func (s SGD) Step(params, gradients []float64) []float64 {
	result := make([]float64, len(params))
	for i := range params {
		result[i] = params[i] - s.LearningRate*gradients[i]
	}
	return result
}

// StepInPlace updates params in-place: params = params - lr * gradients
func (s SGD) StepInPlace(params, gradients []float64) {
	for i := range params {
		params[i] -= s.LearningRate * gradients[i]
	}
}

// StepBlock applies a plain SGD step; SGD keeps no per-block state, so
// the key is ignored.
func (s SGD) StepBlock(key int, params, gradients []float64) {
	s.StepInPlace(params, gradients)
}

// MomentumSGD is SGD with classical momentum, with one velocity buffer
// per block key. Blocks absent from a batch keep their velocity until
// they are touched again.
type MomentumSGD struct {
	LearningRate float64
	Momentum     float64

	velocity map[int][]float64
}

// NewMomentumSGD creates a MomentumSGD optimizer.
func NewMomentumSGD(learningRate, momentum float64) *MomentumSGD {
	return &MomentumSGD{
		LearningRate: learningRate,
		Momentum:     momentum,
		velocity:     make(map[int][]float64),
	}
}

// StepBlock updates one keyed block in place:
// v = momentum*v + gradients; params = params - lr*v.
func (m *MomentumSGD) StepBlock(key int, params, gradients []float64) {
	v, ok := m.velocity[key]
	if !ok || len(v) != len(params) {
		v = make([]float64, len(params))
		m.velocity[key] = v
	}
	for i := range params {
		v[i] = m.Momentum*v[i] + gradients[i]
		params[i] -= m.LearningRate * v[i]
	}
}

// Reset drops all per-block state.
func (m *MomentumSGD) Reset() {
	m.velocity = make(map[int][]float64)
}
