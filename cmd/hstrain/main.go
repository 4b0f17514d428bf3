package main

import (
	"fmt"
	"math/rand"

	"github.com/FlavioCFOliveira/GoHSoftmax/internal/hierarchy"
	"github.com/FlavioCFOliveira/GoHSoftmax/internal/layer"
	"github.com/FlavioCFOliveira/GoHSoftmax/internal/opt"
)

func main() {
	fmt.Println("=== Hierarchical Softmax Training Example ===")

	// Two-level class tree: root 1 splits into 3 categories, each
	// category into 4 leaves. 12 leaf classes, ids 5..16.
	tree := hierarchy.Tree{
		1: {2, 3, 4},
		2: {5, 6, 7, 8},
		3: {9, 10, 11, 12},
		4: {13, 14, 15, 16},
	}
	leaves := []int{5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	in := 8

	hsm, err := layer.NewHierarchicalSoftmax(in, tree, 1, false, true)
	if err != nil {
		fmt.Println("failed to build layer:", err)
		return
	}

	fmt.Printf("Input size: %d, classes: %d\n", in, hsm.Classes())
	fmt.Printf("Max sibling group: %d, max path depth: %d\n",
		hsm.Index().MaxFamily(), hsm.Geometry().MaxDepth())
	fmt.Println("Optimizer: momentum SGD over keyed blocks")

	// Synthetic data: each leaf class gets a noisy prototype vector.
	rng := rand.New(rand.NewSource(42))
	prototypes := make(map[int][]float64, len(leaves))
	for _, leaf := range leaves {
		p := make([]float64, in)
		for i := range p {
			p[i] = rng.NormFloat64()
		}
		prototypes[leaf] = p
	}

	const batchSize = 16
	sample := func() ([][]float64, []int) {
		inputs := make([][]float64, batchSize)
		targets := make([]int, batchSize)
		for b := 0; b < batchSize; b++ {
			leaf := leaves[rng.Intn(len(leaves))]
			x := make([]float64, in)
			for i := range x {
				x[i] = prototypes[leaf][i] + 0.3*rng.NormFloat64()
			}
			inputs[b] = x
			targets[b] = leaf
		}
		return inputs, targets
	}

	optimizer := opt.NewMomentumSGD(0.1, 0.9)
	gradOutput := make([]float64, batchSize)
	for i := range gradOutput {
		// Minimizing NLL: dL/d logp = -1 per example.
		gradOutput[i] = -1.0 / batchSize
	}

	for epoch := 0; epoch < 200; epoch++ {
		totalNLL := 0.0
		const batchesPerEpoch = 20
		for b := 0; b < batchesPerEpoch; b++ {
			inputs, targets := sample()

			logProbs := hsm.Forward(inputs, targets)
			for _, lp := range logProbs {
				totalNLL -= lp
			}

			hsm.ZeroGradients()
			hsm.Backward(inputs, targets, gradOutput)
			for _, block := range hsm.Blocks() {
				optimizer.StepBlock(block.Key, block.Params, block.Grads)
			}
		}
		if epoch%20 == 0 {
			fmt.Printf("Epoch %3d: mean NLL = %.4f\n",
				epoch, totalNLL/float64(batchesPerEpoch*batchSize))
		}
	}

	// Check the trained model picks the right leaf for each prototype.
	correct := 0
	for _, leaf := range leaves {
		inputs := make([][]float64, len(leaves))
		targets := make([]int, len(leaves))
		for i, candidate := range leaves {
			inputs[i] = prototypes[leaf]
			targets[i] = candidate
		}
		logProbs := hsm.Forward(inputs, targets)
		best := 0
		for i, lp := range logProbs {
			if lp > logProbs[best] {
				best = i
			}
		}
		if leaves[best] == leaf {
			correct++
		}
	}
	fmt.Printf("Prototype accuracy: %d/%d\n", correct, len(leaves))
}
