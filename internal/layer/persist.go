package layer

import (
	"encoding/gob"
	"fmt"
	"io"
	"os"

	"github.com/FlavioCFOliveira/GoHSoftmax/internal/hierarchy"
)

// snapshot is the serialized form of a HierarchicalSoftmax. Scratch
// buffers, gradients and the updates set are not persisted; a loaded
// layer starts with empty accumulators.
type snapshot struct {
	InSize            int
	Root              int
	Tree              hierarchy.Tree
	AccumulateInPlace bool
	StaticKeys        bool
	Backend           string
	Weights           []float64
	Biases            []float64
}

// Encode writes the layer to w using gob encoding. The sibling-group
// layout is deterministic (sorted parent order), so the flat weight
// slices round-trip without re-indexing.
func (h *HierarchicalSoftmax) Encode(w io.Writer) error {
	snap := snapshot{
		InSize:            h.inSize,
		Root:              h.idx.Root(),
		Tree:              h.idx.Tree(),
		AccumulateInPlace: h.accumulateInPlace,
		StaticKeys:        h.staticKeys,
		Backend:           h.backend.Name(),
		Weights:           h.store.weights,
		Biases:            h.store.biases,
	}
	if err := gob.NewEncoder(w).Encode(&snap); err != nil {
		return fmt.Errorf("failed to encode hierarchical softmax: %w", err)
	}
	return nil
}

// Decode reads a layer previously written by Encode.
func Decode(r io.Reader) (*HierarchicalSoftmax, error) {
	var snap snapshot
	if err := gob.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode hierarchical softmax: %w", err)
	}

	h, err := NewHierarchicalSoftmax(snap.InSize, snap.Tree, snap.Root, snap.AccumulateInPlace, snap.StaticKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild hierarchy: %w", err)
	}
	if len(snap.Weights) != len(h.store.weights) || len(snap.Biases) != len(h.store.biases) {
		return nil, fmt.Errorf("parameter shape mismatch: %d/%d weights, %d/%d biases",
			len(snap.Weights), len(h.store.weights), len(snap.Biases), len(h.store.biases))
	}
	copy(h.store.weights, snap.Weights)
	copy(h.store.biases, snap.Biases)

	switch snap.Backend {
	case Float32Backend{}.Name():
		h.backend = Float32Backend{}
	case Float64Backend{}.Name():
		h.backend = Float64Backend{}
	default:
		return nil, fmt.Errorf("unknown backend %q in snapshot", snap.Backend)
	}
	return h, nil
}

// Save writes the layer to a file.
func (h *HierarchicalSoftmax) Save(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	return h.Encode(file)
}

// Load reads a layer from a file written by Save.
func Load(filename string) (*HierarchicalSoftmax, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return Decode(file)
}
