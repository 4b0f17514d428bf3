package hierarchy

import "fmt"

// Geometry holds per-parent path measurements derived from an Index.
//
// TreeSize of a parent is the sum of the sibling-group sizes met while
// walking from that parent up to the root: the scratch space one example
// needs to hold every group softmax along that path. PathDepth is the
// number of steps on the same walk, with the root at depth 1. The maxima
// over all parents size the per-example buffers of the softmax layer.
type Geometry struct {
	treeSize  []int // parent id -> accumulated family sizes, 0 if not a parent
	pathDepth []int // parent id -> steps to root, 0 if not a parent

	maxFamilyPath int
	maxDepth      int
}

// ComputeGeometry resolves tree size and path depth for every parent
// node. Each node is resolved once: the upward walk stops at the first
// memoized ancestor and back-fills the chain below it.
//
// A malformed tree is reported instead of looping: a parent chain that
// revisits itself yields ErrCyclicHierarchy, and a parent with no route
// to the root yields ErrDisconnected.
func ComputeGeometry(idx *Index) (*Geometry, error) {
	g := &Geometry{
		treeSize:  make([]int, idx.MaxParentID()+1),
		pathDepth: make([]int, idx.MaxParentID()+1),
	}

	root := idx.Root()
	_, rootCount := idx.ChildrenRange(root)
	g.treeSize[root] = rootCount
	g.pathDepth[root] = 1

	onPath := make([]bool, idx.MaxParentID()+1)
	chain := make([]int, 0, idx.NumParents())

	for _, parent := range idx.Parents() {
		if g.pathDepth[parent] != 0 {
			continue
		}

		// Walk upward until a resolved ancestor, marking the chain so
		// a revisit is caught as a cycle.
		chain = chain[:0]
		node := parent
		for g.pathDepth[node] == 0 {
			if onPath[node] {
				clearPath(onPath, chain)
				return nil, fmt.Errorf("%w: through node %d", ErrCyclicHierarchy, node)
			}
			onPath[node] = true
			chain = append(chain, node)

			up, _, ok := idx.Parent(node)
			if !ok {
				clearPath(onPath, chain)
				return nil, fmt.Errorf("%w: parent %d", ErrDisconnected, node)
			}
			// up is necessarily a parent: the child -> parent mapping
			// is only ever populated from sibling-group heads.
			node = up
		}

		// Back-fill the chain from the resolved ancestor down.
		for i := len(chain) - 1; i >= 0; i-- {
			n := chain[i]
			up := node
			if i < len(chain)-1 {
				up = chain[i+1]
			}
			_, count := idx.ChildrenRange(n)
			g.treeSize[n] = count + g.treeSize[up]
			g.pathDepth[n] = g.pathDepth[up] + 1
			onPath[n] = false
		}
	}

	for _, parent := range idx.Parents() {
		if g.treeSize[parent] > g.maxFamilyPath {
			g.maxFamilyPath = g.treeSize[parent]
		}
		if g.pathDepth[parent] > g.maxDepth {
			g.maxDepth = g.pathDepth[parent]
		}
	}

	return g, nil
}

func clearPath(onPath []bool, chain []int) {
	for _, n := range chain {
		onPath[n] = false
	}
}

// TreeSize returns the accumulated sibling-group size along the path
// from parent to the root, or 0 for a non-parent id.
func (g *Geometry) TreeSize(parent int) int {
	if parent < 0 || parent >= len(g.treeSize) {
		return 0
	}
	return g.treeSize[parent]
}

// PathDepth returns the number of steps from parent to the root, with
// the root at depth 1, or 0 for a non-parent id.
func (g *Geometry) PathDepth(parent int) int {
	if parent < 0 || parent >= len(g.pathDepth) {
		return 0
	}
	return g.pathDepth[parent]
}

// MaxFamilyPath returns the largest TreeSize over all parents: the
// per-example scratch needed for the deepest, widest path.
func (g *Geometry) MaxFamilyPath() int { return g.maxFamilyPath }

// MaxDepth returns the largest PathDepth over all parents.
func (g *Geometry) MaxDepth() int { return g.maxDepth }
