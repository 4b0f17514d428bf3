package gohsoftmax

import (
	"github.com/FlavioCFOliveira/GoHSoftmax/internal/hierarchy"
	"github.com/FlavioCFOliveira/GoHSoftmax/internal/layer"
	"github.com/FlavioCFOliveira/GoHSoftmax/internal/opt"
)

// Re-export common types for easier access
type (
	Tree           = hierarchy.Tree
	Index          = hierarchy.Index
	Geometry       = hierarchy.Geometry
	Layer          = layer.HierarchicalSoftmax
	NodeParams     = layer.NodeParams
	ParamBlock     = layer.ParamBlock
	Backend        = layer.Backend
	Optimizer      = opt.Optimizer
	BlockOptimizer = opt.BlockOptimizer
)

// Construction errors
var (
	ErrNegativeID      = hierarchy.ErrNegativeID
	ErrEmptyFamily     = hierarchy.ErrEmptyFamily
	ErrDuplicateChild  = hierarchy.ErrDuplicateChild
	ErrMissingRoot     = hierarchy.ErrMissingRoot
	ErrCyclicHierarchy = hierarchy.ErrCyclicHierarchy
	ErrDisconnected    = hierarchy.ErrDisconnected
)

// New creates a hierarchical softmax layer for inputs of width in over
// the class tree rooted at root.
func New(in int, tree Tree, root int, accumulateInPlace, staticKeys bool) (*Layer, error) {
	return layer.NewHierarchicalSoftmax(in, tree, root, accumulateInPlace, staticKeys)
}

// BuildIndex compiles a tree without allocating parameters, for callers
// that only need the lookup structures.
func BuildIndex(tree Tree, root int) (*Index, error) {
	return hierarchy.Build(tree, root)
}

// Backends
func Float64() Backend { return layer.Float64Backend{} }
func Float32() Backend { return layer.Float32Backend{} }

func GetDefaultBackend() Backend {
	return layer.GetDefaultBackend()
}

// Optimizers
func SGD(lr float64) Optimizer {
	return opt.SGD{LearningRate: lr}
}

func MomentumSGD(lr, momentum float64) *opt.MomentumSGD {
	return opt.NewMomentumSGD(lr, momentum)
}

// Model Persistence
func Load(filename string) (*Layer, error) {
	return layer.Load(filename)
}
