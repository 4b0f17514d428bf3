// Package layer provides the hierarchical softmax output layer.
package layer

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/FlavioCFOliveira/GoHSoftmax/internal/hierarchy"
)

// HierarchicalSoftmax scores a batch of feature vectors against targets
// drawn from a class tree. The probability of a target factorizes over
// its root path: one softmax per sibling group, so a forward pass costs
// the path length instead of the vocabulary size.
//
// Each non-root node owns one weight row and one bias. Rows are laid out
// in the contiguous sibling-group order of hierarchy.Index, so a group's
// parameters are a single slice. Gradients are dense within a visited
// group and zero everywhere else; the updates set records which groups a
// backward pass touched.
type HierarchicalSoftmax struct {
	idx  *hierarchy.Index
	geom *hierarchy.Geometry

	inSize            int
	accumulateInPlace bool
	staticKeys        bool

	backend Backend

	// store and updates are shared between an instance and its shared
	// clones; everything below them is per-instance scratch.
	store   *paramStore
	updates map[int]int

	pathBuf   []float64   // batchSize * maxFamilyPath, per-path logit workspace
	familyBuf []float64   // maxFamily, single-group workspace
	output    []float64   // batchSize
	gradInput [][]float64 // batchSize x inSize
	batchSize int
}

// paramStore is the backing parameter storage: one row and one bias per
// non-root node. Gradient twins are nil in accumulate-in-place mode.
type paramStore struct {
	weights     []float64 // numChildren * inSize, row-major
	biases      []float64 // numChildren
	gradWeights []float64
	gradBiases  []float64
}

// NodeParams exposes one parent's sibling-group block. The slices alias
// the backing storage, so writes through them are live and visible to
// every shared clone. Grad slices are nil in accumulate-in-place mode.
type NodeParams struct {
	Weight     []float64 // count * inSize, row-major
	Bias       []float64 // count
	GradWeight []float64
	GradBias   []float64
}

// ParamBlock is one entry of the Parameters enumeration. Key is -1 in
// non-keyed mode; in static mode a weight block is keyed by its parent
// id and the matching bias block by the parent id offset by one past
// the largest parent id, so weight and bias keys never collide and an
// external optimizer can track per-block state across batches.
type ParamBlock struct {
	Key    int
	Params []float64
	Grads  []float64
}

// NewHierarchicalSoftmax compiles tree rooted at root and allocates
// parameters for an input width of in.
//
// accumulateInPlace drops the separate gradient buffers: Backward then
// applies gradient descent directly to the weights (the caller folds the
// learning rate into gradOutput) and ApplyUpdate becomes invalid.
// staticKeys selects keyed parameter enumeration, see Parameters.
func NewHierarchicalSoftmax(in int, tree hierarchy.Tree, root int, accumulateInPlace, staticKeys bool) (*HierarchicalSoftmax, error) {
	if in <= 0 {
		return nil, fmt.Errorf("layer: input size must be positive, got %d", in)
	}
	idx, err := hierarchy.Build(tree, root)
	if err != nil {
		return nil, err
	}
	geom, err := hierarchy.ComputeGeometry(idx)
	if err != nil {
		return nil, err
	}

	n := idx.NumChildren()
	store := &paramStore{
		weights: make([]float64, n*in),
		biases:  make([]float64, n),
	}
	if !accumulateInPlace {
		store.gradWeights = make([]float64, n*in)
		store.gradBiases = make([]float64, n)
	}

	// Xavier/Glorot initialization over the largest sibling group.
	scale := math.Sqrt(2.0 / (float64(in) + float64(idx.MaxFamily())))
	for i := range store.weights {
		store.weights[i] = rand.Float64()*2*scale - scale
	}
	for i := range store.biases {
		store.biases[i] = rand.Float64()*0.2 - 0.1
	}

	return &HierarchicalSoftmax{
		idx:               idx,
		geom:              geom,
		inSize:            in,
		accumulateInPlace: accumulateInPlace,
		staticKeys:        staticKeys,
		backend:           GetDefaultBackend(),
		store:             store,
		updates:           make(map[int]int),
		familyBuf:         make([]float64, idx.MaxFamily()),
	}, nil
}

// ensureBatch resizes the batch-dependent scratch. Buffers are reused
// across calls and only reallocated when the batch size changes.
func (h *HierarchicalSoftmax) ensureBatch(batch int) {
	if batch == h.batchSize && h.pathBuf != nil {
		return
	}
	h.batchSize = batch
	h.pathBuf = make([]float64, batch*h.geom.MaxFamilyPath())
	h.output = make([]float64, batch)
	h.gradInput = make([][]float64, batch)
	for i := range h.gradInput {
		h.gradInput[i] = make([]float64, h.inSize)
	}
	if h.familyBuf == nil {
		h.familyBuf = make([]float64, h.idx.MaxFamily())
	}
}

// walkPath checks that target has a parent chain ending at the root.
// Forward and Backward validate the whole path before touching any
// persistent state, so a bad target aborts with nothing committed for
// that example.
func (h *HierarchicalSoftmax) walkPath(target int) {
	node := target
	for {
		parent, _, ok := h.idx.Parent(node)
		if !ok {
			panic(fmt.Sprintf("layer: target %d has no path to root %d", target, h.idx.Root()))
		}
		if parent == h.idx.Root() {
			return
		}
		node = parent
	}
}

// Forward computes the log-probability of each target under the
// tree-factorized softmax. One scalar per example: the sum over the
// target's root path of the group log-softmax evaluated at the branch
// leading toward the target.
//
// The returned slice is reused across calls.
func (h *HierarchicalSoftmax) Forward(inputs [][]float64, targets []int) []float64 {
	if len(inputs) != len(targets) {
		panic(fmt.Sprintf("layer: batch mismatch, %d inputs vs %d targets", len(inputs), len(targets)))
	}
	h.ensureBatch(len(inputs))

	w, b := h.store.weights, h.store.biases
	for ex := range inputs {
		x := inputs[ex]
		if len(x) != h.inSize {
			panic(fmt.Sprintf("layer: input %d has width %d, want %d", ex, len(x), h.inSize))
		}
		h.walkPath(targets[ex])

		off := ex * h.geom.MaxFamilyPath()
		used := 0
		sum := 0.0
		node := targets[ex]
		for {
			parent, pos, _ := h.idx.Parent(node)
			start, count := h.idx.ChildrenRange(parent)

			logits := h.pathBuf[off+used : off+used+count]
			h.backend.Logits(logits, w, b, start, h.inSize, x)
			h.backend.LogSoftmax(logits)
			sum += logits[pos]
			used += count

			if parent == h.idx.Root() {
				break
			}
			node = parent
		}
		h.output[ex] = sum
	}
	return h.output
}

// Backward re-walks each example's root path and propagates gradOutput
// through every visited group. Within a group the gradient is the usual
// softmax-cross-entropy form, dense over all siblings: for sibling i,
// d logp(target) / d logit_i = 1{selected} - softmax_i. It returns the
// gradient w.r.t. the inputs; weight and bias gradients are accumulated
// into the store (or, in accumulate-in-place mode, subtracted from the
// weights directly) and each visited parent is recorded in the updates
// set.
//
// Group softmaxes are recomputed rather than cached from Forward; the
// cache would cost batch x maxFamilyPath activations per call.
func (h *HierarchicalSoftmax) Backward(inputs [][]float64, targets []int, gradOutput []float64) [][]float64 {
	if len(inputs) != len(targets) {
		panic(fmt.Sprintf("layer: batch mismatch, %d inputs vs %d targets", len(inputs), len(targets)))
	}
	if len(gradOutput) != len(inputs) {
		panic(fmt.Sprintf("layer: batch mismatch, %d inputs vs %d output gradients", len(inputs), len(gradOutput)))
	}
	h.ensureBatch(len(inputs))

	w, b := h.store.weights, h.store.biases
	for ex := range inputs {
		x := inputs[ex]
		if len(x) != h.inSize {
			panic(fmt.Sprintf("layer: input %d has width %d, want %d", ex, len(x), h.inSize))
		}
		h.walkPath(targets[ex])

		gin := h.gradInput[ex]
		for i := range gin {
			gin[i] = 0
		}
		scale := gradOutput[ex]

		node := targets[ex]
		for {
			parent, pos, _ := h.idx.Parent(node)
			start, count := h.idx.ChildrenRange(parent)

			logp := h.familyBuf[:count]
			h.backend.Logits(logp, w, b, start, h.inSize, x)
			h.backend.LogSoftmax(logp)

			// Local logit gradients for the whole sibling group.
			for i := 0; i < count; i++ {
				g := -math.Exp(logp[i]) * scale
				if i == pos {
					g += scale
				}
				logp[i] = g
			}

			// Input gradient first, from the pre-update weights.
			for i := 0; i < count; i++ {
				row := (start + i) * h.inSize
				h.backend.AddScaled(gin, logp[i], w[row:row+h.inSize])
			}

			if h.accumulateInPlace {
				for i := 0; i < count; i++ {
					row := (start + i) * h.inSize
					h.backend.AddScaled(w[row:row+h.inSize], -logp[i], x)
					b[start+i] -= logp[i]
				}
			} else {
				for i := 0; i < count; i++ {
					row := (start + i) * h.inSize
					h.backend.AddScaled(h.store.gradWeights[row:row+h.inSize], logp[i], x)
					h.store.gradBiases[start+i] += logp[i]
				}
			}
			h.updates[parent]++

			if parent == h.idx.Root() {
				break
			}
			node = parent
		}
	}
	return h.gradInput
}

// ZeroGradients clears the gradient accumulators and the updates set.
// The updates map is emptied in place so shared clones keep observing
// the same set.
func (h *HierarchicalSoftmax) ZeroGradients() {
	if h.store.gradWeights != nil {
		zero(h.store.gradWeights)
		zero(h.store.gradBiases)
	}
	for k := range h.updates {
		delete(h.updates, k)
	}
}

// ApplyUpdate performs one gradient-descent step over the touched
// blocks, or over all parameters if no backward pass has run since the
// last reset. It panics in accumulate-in-place mode, where Backward has
// already applied the update.
func (h *HierarchicalSoftmax) ApplyUpdate(learningRate float64) {
	if h.accumulateInPlace {
		panic("layer: ApplyUpdate is invalid in accumulate-in-place mode")
	}
	if len(h.updates) == 0 {
		h.backend.AddScaled(h.store.weights, -learningRate, h.store.gradWeights)
		h.backend.AddScaled(h.store.biases, -learningRate, h.store.gradBiases)
		return
	}
	for parent := range h.updates {
		start, count := h.idx.ChildrenRange(parent)
		row := start * h.inSize
		n := count * h.inSize
		h.backend.AddScaled(h.store.weights[row:row+n], -learningRate, h.store.gradWeights[row:row+n])
		h.backend.AddScaled(h.store.biases[start:start+count], -learningRate, h.store.gradBiases[start:start+count])
	}
}

// Parameters enumerates parameter blocks for an external optimizer. If
// any group was touched since the last reset, only those blocks are
// returned; otherwise every parent's blocks are.
//
// With static true, blocks carry stable keys (weight: parent id, bias:
// parent id offset by one past the largest parent id) and are sorted by
// key, so per-block optimizer state survives across batches. With static false
// the blocks are an unordered sequence with Key -1; before any backward
// pass that degenerates to the two whole backing arrays.
func (h *HierarchicalSoftmax) Parameters(static bool) []ParamBlock {
	if !static && len(h.updates) == 0 {
		return []ParamBlock{
			{Key: -1, Params: h.store.weights, Grads: h.store.gradWeights},
			{Key: -1, Params: h.store.biases, Grads: h.store.gradBiases},
		}
	}

	var parents []int
	if len(h.updates) > 0 {
		parents = make([]int, 0, len(h.updates))
		for parent := range h.updates {
			parents = append(parents, parent)
		}
	} else {
		parents = h.idx.Parents()
	}
	if static {
		sort.Ints(parents)
	}

	blocks := make([]ParamBlock, 0, 2*len(parents))
	for _, parent := range parents {
		np, _ := h.GetNodeParameters(parent)
		wKey, bKey := -1, -1
		if static {
			wKey = parent
			bKey = parent + h.idx.MaxParentID() + 1
		}
		blocks = append(blocks,
			ParamBlock{Key: wKey, Params: np.Weight, Grads: np.GradWeight},
			ParamBlock{Key: bKey, Params: np.Bias, Grads: np.GradBias})
	}
	return blocks
}

// Blocks enumerates parameter blocks with the keying mode selected at
// construction.
func (h *HierarchicalSoftmax) Blocks() []ParamBlock {
	return h.Parameters(h.staticKeys)
}

// GetNodeParameters returns the live weight/bias block of one parent's
// sibling group. ok is false if parentID heads no group.
func (h *HierarchicalSoftmax) GetNodeParameters(parentID int) (NodeParams, bool) {
	start, count := h.idx.ChildrenRange(parentID)
	if count == 0 {
		return NodeParams{}, false
	}
	row := start * h.inSize
	n := count * h.inSize
	np := NodeParams{
		Weight: h.store.weights[row : row+n],
		Bias:   h.store.biases[start : start+count],
	}
	if h.store.gradWeights != nil {
		np.GradWeight = h.store.gradWeights[row : row+n]
		np.GradBias = h.store.gradBiases[start : start+count]
	}
	return np, true
}

// SharedClone returns an instance that shares this one's parameter and
// gradient storage and its updates set, but owns fresh scratch buffers.
// Clones can run forward/backward over different shards against one
// parameter set; concurrent accumulation still needs external
// synchronization, see the package tests for the sequential pattern.
func (h *HierarchicalSoftmax) SharedClone() *HierarchicalSoftmax {
	return &HierarchicalSoftmax{
		idx:               h.idx,
		geom:              h.geom,
		inSize:            h.inSize,
		accumulateInPlace: h.accumulateInPlace,
		staticKeys:        h.staticKeys,
		backend:           h.backend,
		store:             h.store,
		updates:           h.updates,
		familyBuf:         make([]float64, h.idx.MaxFamily()),
	}
}

// SetBackend migrates parameter storage to b's precision and resets the
// batch-dependent scratch, forcing a resize on the next call. Selecting
// the backend already in use is a no-op. Storage is shared with clones,
// so migrate only while no clone has a call in flight.
func (h *HierarchicalSoftmax) SetBackend(b Backend) {
	if b.Name() == h.backend.Name() {
		return
	}
	b.Round(h.store.weights)
	b.Round(h.store.biases)
	if h.store.gradWeights != nil {
		b.Round(h.store.gradWeights)
		b.Round(h.store.gradBiases)
	}
	h.backend = b
	h.pathBuf = nil
	h.output = nil
	h.gradInput = nil
	h.batchSize = 0
}

// Backend returns the backend currently in use.
func (h *HierarchicalSoftmax) Backend() Backend { return h.backend }

// InSize returns the input feature width.
func (h *HierarchicalSoftmax) InSize() int { return h.inSize }

// Classes returns the number of non-root nodes, one parameter row each.
func (h *HierarchicalSoftmax) Classes() int { return h.idx.NumChildren() }

// Index exposes the compiled hierarchy.
func (h *HierarchicalSoftmax) Index() *hierarchy.Index { return h.idx }

// Geometry exposes the path measurements used to size scratch buffers.
func (h *HierarchicalSoftmax) Geometry() *hierarchy.Geometry { return h.geom }

// Updates returns the parent ids touched since the last reset, in
// ascending order.
func (h *HierarchicalSoftmax) Updates() []int {
	parents := make([]int, 0, len(h.updates))
	for parent := range h.updates {
		parents = append(parents, parent)
	}
	sort.Ints(parents)
	return parents
}

func zero(v []float64) {
	for i := range v {
		v[i] = 0
	}
}
