// Package hierarchy provides unit tests for tree compilation.
package hierarchy

import (
	"errors"
	"testing"
)

// testTree is a small three-parent tree used across tests:
// root 1 -> {2, 3}, 2 -> {4, 5}, 3 -> {6, 7, 8}.
func testTree() Tree {
	return Tree{
		1: {2, 3},
		2: {4, 5},
		3: {6, 7, 8},
	}
}

// TestBuildCounts tests the global counts and maxima.
func TestBuildCounts(t *testing.T) {
	idx, err := Build(testTree(), 1)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if got := idx.NumChildren(); got != 7 {
		t.Errorf("NumChildren = %d, want 7", got)
	}
	if got := idx.NumParents(); got != 3 {
		t.Errorf("NumParents = %d, want 3", got)
	}
	if got := idx.MinID(); got != 1 {
		t.Errorf("MinID = %d, want 1", got)
	}
	if got := idx.MaxID(); got != 8 {
		t.Errorf("MaxID = %d, want 8", got)
	}
	if got := idx.MaxParentID(); got != 3 {
		t.Errorf("MaxParentID = %d, want 3", got)
	}
	if got := idx.MaxFamily(); got != 3 {
		t.Errorf("MaxFamily = %d, want 3", got)
	}
	if got := idx.Root(); got != 1 {
		t.Errorf("Root = %d, want 1", got)
	}
}

// TestBuildLookups tests O(1) range and parent lookups against the
// supplied tree.
func TestBuildLookups(t *testing.T) {
	tree := testTree()
	idx, err := Build(tree, 1)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	for parent, children := range tree {
		start, count := idx.ChildrenRange(parent)
		if count != len(children) {
			t.Errorf("ChildrenRange(%d) count = %d, want %d", parent, count, len(children))
		}
		for pos, child := range children {
			if got := idx.ChildID(start + pos); got != child {
				t.Errorf("ChildID(%d) = %d, want %d", start+pos, got, child)
			}
			gotParent, gotPos, ok := idx.Parent(child)
			if !ok || gotParent != parent || gotPos != pos {
				t.Errorf("Parent(%d) = (%d, %d, %v), want (%d, %d, true)",
					child, gotParent, gotPos, ok, parent, pos)
			}
		}
	}

	// Root is never a child; unknown ids are not children either.
	if _, _, ok := idx.Parent(1); ok {
		t.Error("Parent(root) should not resolve")
	}
	if _, _, ok := idx.Parent(99); ok {
		t.Error("Parent(99) should not resolve")
	}
	if _, count := idx.ChildrenRange(4); count != 0 {
		t.Errorf("ChildrenRange(leaf) count = %d, want 0", count)
	}
}

// TestBuildDeterministicLayout tests that sibling-group offsets follow
// ascending parent-id order regardless of map iteration.
func TestBuildDeterministicLayout(t *testing.T) {
	idx, err := Build(testTree(), 1)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	wantStart := map[int]int{1: 0, 2: 2, 3: 4}
	for parent, want := range wantStart {
		start, _ := idx.ChildrenRange(parent)
		if start != want {
			t.Errorf("ChildrenRange(%d) start = %d, want %d", parent, start, want)
		}
	}
}

// TestBuildTreeRoundTrip tests that Tree() reconstructs the input.
func TestBuildTreeRoundTrip(t *testing.T) {
	tree := testTree()
	idx, err := Build(tree, 1)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	got := idx.Tree()
	if len(got) != len(tree) {
		t.Fatalf("Tree() has %d parents, want %d", len(got), len(tree))
	}
	for parent, children := range tree {
		gotChildren := got[parent]
		if len(gotChildren) != len(children) {
			t.Fatalf("Tree()[%d] has %d children, want %d", parent, len(gotChildren), len(children))
		}
		for i := range children {
			if gotChildren[i] != children[i] {
				t.Errorf("Tree()[%d][%d] = %d, want %d", parent, i, gotChildren[i], children[i])
			}
		}
	}
}

// TestBuildNegativeID tests that negative ids are rejected.
func TestBuildNegativeID(t *testing.T) {
	_, err := Build(Tree{1: {2, -3}}, 1)
	if !errors.Is(err, ErrNegativeID) {
		t.Errorf("Build with negative child = %v, want ErrNegativeID", err)
	}

	_, err = Build(Tree{1: {2}, -1: {3}}, 1)
	if !errors.Is(err, ErrNegativeID) {
		t.Errorf("Build with negative parent = %v, want ErrNegativeID", err)
	}
}

// TestBuildDuplicateChild tests that a child under two parents is a
// checked error rather than a silent overwrite.
func TestBuildDuplicateChild(t *testing.T) {
	_, err := Build(Tree{1: {2, 3}, 2: {4}, 3: {4}}, 1)
	if !errors.Is(err, ErrDuplicateChild) {
		t.Errorf("Build with duplicate child = %v, want ErrDuplicateChild", err)
	}
}

// TestBuildEmptyFamily tests that a parent with no children is rejected.
func TestBuildEmptyFamily(t *testing.T) {
	_, err := Build(Tree{1: {2}, 2: {}}, 1)
	if !errors.Is(err, ErrEmptyFamily) {
		t.Errorf("Build with empty family = %v, want ErrEmptyFamily", err)
	}
}

// TestBuildMissingRoot tests that the root must head a sibling group.
func TestBuildMissingRoot(t *testing.T) {
	_, err := Build(Tree{2: {3, 4}}, 1)
	if !errors.Is(err, ErrMissingRoot) {
		t.Errorf("Build without root = %v, want ErrMissingRoot", err)
	}

	_, err = Build(Tree{}, 1)
	if !errors.Is(err, ErrMissingRoot) {
		t.Errorf("Build with empty tree = %v, want ErrMissingRoot", err)
	}
}

// TestIDSpaceWaste tests the sparse id-space diagnostic.
func TestIDSpaceWaste(t *testing.T) {
	idx, err := Build(Tree{1: {100, 200}}, 1)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	// ids {1, 100, 200} span 200 slots for 3 nodes.
	if got := idx.IDSpaceWaste(); got != 197 {
		t.Errorf("IDSpaceWaste = %d, want 197", got)
	}

	dense, err := Build(testTree(), 1)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if got := dense.IDSpaceWaste(); got != 0 {
		t.Errorf("IDSpaceWaste (dense) = %d, want 0", got)
	}
}

// TestParents tests the sorted parent enumeration.
func TestParents(t *testing.T) {
	idx, err := Build(testTree(), 1)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	parents := idx.Parents()
	want := []int{1, 2, 3}
	if len(parents) != len(want) {
		t.Fatalf("Parents() = %v, want %v", parents, want)
	}
	for i := range want {
		if parents[i] != want[i] {
			t.Errorf("Parents()[%d] = %d, want %d", i, parents[i], want[i])
		}
	}
}
