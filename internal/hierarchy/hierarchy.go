// Package hierarchy compiles class trees into flat lookup tables.
package hierarchy

import (
	"fmt"
	"log"
	"sort"
)

// Tree maps a parent node id to the ordered list of its child ids.
// Every id except the root must appear as a child exactly once.
type Tree map[int][]int

// Construction errors. Build and ComputeGeometry wrap these with the
// offending node id.
var (
	ErrNegativeID      = fmt.Errorf("hierarchy: negative node id")
	ErrEmptyFamily     = fmt.Errorf("hierarchy: parent with no children")
	ErrDuplicateChild  = fmt.Errorf("hierarchy: child registered under two parents")
	ErrMissingRoot     = fmt.Errorf("hierarchy: root id is not a parent in the tree")
	ErrCyclicHierarchy = fmt.Errorf("hierarchy: cycle detected")
	ErrDisconnected    = fmt.Errorf("hierarchy: node not reachable from root")
)

// Index is the compiled form of a Tree. Children of a parent occupy a
// contiguous range of a global child table, so a sibling group maps to a
// contiguous block of parameter rows. All lookups are O(1).
//
// Lookup tables are indexed directly by node id, so a sparse id space
// wastes memory proportionally to the largest id. That is a deliberate
// trade-off for O(1) access; Build logs a diagnostic when the waste is
// large.
type Index struct {
	root int

	childIDs   []int // global child table, grouped by parent
	childStart []int // parent id -> offset into childIDs, -1 if not a parent
	childCount []int // parent id -> family size
	parentID   []int // child id -> parent id, -1 if never a child
	childPos   []int // child id -> position within its sibling group

	nChildren   int
	nParents    int
	minID       int
	maxID       int
	maxParentID int
	maxFamily   int
}

// Build compiles tree into an Index rooted at root.
//
// Sibling-group ranges are assigned in ascending parent-id order, so the
// storage layout does not depend on map iteration order.
func Build(tree Tree, root int) (*Index, error) {
	if root < 0 {
		return nil, fmt.Errorf("%w: root %d", ErrNegativeID, root)
	}
	if len(tree) == 0 {
		return nil, ErrMissingRoot
	}
	if _, ok := tree[root]; !ok {
		return nil, fmt.Errorf("%w: root %d", ErrMissingRoot, root)
	}

	idx := &Index{
		root:  root,
		minID: root,
		maxID: root,
	}

	// First pass: validate ids and collect counts and maxima. Only
	// sums and maxima are derived here, so iteration order does not
	// matter.
	for parent, children := range tree {
		if parent < 0 {
			return nil, fmt.Errorf("%w: parent %d", ErrNegativeID, parent)
		}
		if len(children) == 0 {
			return nil, fmt.Errorf("%w: parent %d", ErrEmptyFamily, parent)
		}
		idx.nParents++
		idx.nChildren += len(children)
		if len(children) > idx.maxFamily {
			idx.maxFamily = len(children)
		}
		if parent > idx.maxParentID {
			idx.maxParentID = parent
		}
		idx.observeID(parent)
		for _, child := range children {
			if child < 0 {
				return nil, fmt.Errorf("%w: child %d of parent %d", ErrNegativeID, child, parent)
			}
			idx.observeID(child)
		}
	}

	idx.childIDs = make([]int, 0, idx.nChildren)
	idx.childStart = make([]int, idx.maxParentID+1)
	idx.childCount = make([]int, idx.maxParentID+1)
	idx.parentID = make([]int, idx.maxID+1)
	idx.childPos = make([]int, idx.maxID+1)
	for i := range idx.childStart {
		idx.childStart[i] = -1
	}
	for i := range idx.parentID {
		idx.parentID[i] = -1
	}

	// Second pass in sorted parent order: assign contiguous ranges and
	// the child -> parent mapping. A child seen twice is a malformed
	// tree, not a silent overwrite.
	parents := make([]int, 0, idx.nParents)
	for parent := range tree {
		parents = append(parents, parent)
	}
	sort.Ints(parents)
	for _, parent := range parents {
		children := tree[parent]
		idx.childStart[parent] = len(idx.childIDs)
		idx.childCount[parent] = len(children)
		for pos, child := range children {
			if idx.parentID[child] != -1 {
				return nil, fmt.Errorf("%w: child %d under parents %d and %d",
					ErrDuplicateChild, child, idx.parentID[child], parent)
			}
			idx.parentID[child] = parent
			idx.childPos[child] = pos
			idx.childIDs = append(idx.childIDs, child)
		}
	}
	if waste := idx.IDSpaceWaste(); waste > idx.nChildren+1 {
		log.Printf("hierarchy: id space [%d,%d] leaves %d unused slots for %d nodes; lookup tables are sized by max id",
			idx.minID, idx.maxID, waste, idx.nChildren+1)
	}

	return idx, nil
}

func (x *Index) observeID(id int) {
	if id < x.minID {
		x.minID = id
	}
	if id > x.maxID {
		x.maxID = id
	}
}

// Root returns the root node id.
func (x *Index) Root() int { return x.root }

// ChildrenRange returns the offset of parent's sibling group in the
// global child table and the group size. count is 0 if parent has no
// children.
func (x *Index) ChildrenRange(parent int) (start, count int) {
	if parent < 0 || parent >= len(x.childStart) || x.childStart[parent] < 0 {
		return 0, 0
	}
	return x.childStart[parent], x.childCount[parent]
}

// Parent returns the parent of child and the child's position within its
// sibling group. ok is false if child never appears as a child in the
// tree (for example the root, or an unknown id).
func (x *Index) Parent(child int) (parent, pos int, ok bool) {
	if child < 0 || child >= len(x.parentID) || x.parentID[child] < 0 {
		return 0, 0, false
	}
	return x.parentID[child], x.childPos[child], true
}

// ChildID returns the node id stored at offset i of the global child
// table. Parameter row i belongs to this node.
func (x *Index) ChildID(i int) int { return x.childIDs[i] }

// IsParent reports whether id heads a sibling group.
func (x *Index) IsParent(id int) bool {
	return id >= 0 && id < len(x.childStart) && x.childStart[id] >= 0
}

// Parents returns all parent ids in ascending order.
func (x *Index) Parents() []int {
	parents := make([]int, 0, x.nParents)
	for id, start := range x.childStart {
		if start >= 0 {
			parents = append(parents, id)
		}
	}
	return parents
}

// Tree reconstructs the parent -> children mapping the index was built
// from. Used for persistence.
func (x *Index) Tree() Tree {
	tree := make(Tree, x.nParents)
	for id, start := range x.childStart {
		if start < 0 {
			continue
		}
		children := make([]int, x.childCount[id])
		copy(children, x.childIDs[start:start+x.childCount[id]])
		tree[id] = children
	}
	return tree
}

// NumChildren returns the number of non-root nodes, which is also the
// number of parameter rows the tree needs.
func (x *Index) NumChildren() int { return x.nChildren }

// NumParents returns the number of internal nodes.
func (x *Index) NumParents() int { return x.nParents }

// MinID returns the smallest node id in the tree.
func (x *Index) MinID() int { return x.minID }

// MaxID returns the largest node id in the tree.
func (x *Index) MaxID() int { return x.maxID }

// MaxParentID returns the largest parent id. Static bias-block keys are
// offset by one past this value.
func (x *Index) MaxParentID() int { return x.maxParentID }

// MaxFamily returns the size of the largest sibling group.
func (x *Index) MaxFamily() int { return x.maxFamily }

// IDSpaceWaste returns the number of unused slots in the direct-indexed
// lookup tables.
func (x *Index) IDSpaceWaste() int {
	return (x.maxID - x.minID + 1) - (x.nChildren + 1)
}
