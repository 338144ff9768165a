// Package ml implements the gradient-boosted tree models the prediction
// service trains and serves, plus the serialized bundle that carries a
// trained pair between the trainer and the serving path.
package ml

import "sort"

// TreeNode is one node of a regression tree. Nodes are stored in a flat
// slice so a fitted tree serializes without pointer chasing.
type TreeNode struct {
	Feature   int     `msgpack:"f"` // split feature index; -1 marks a leaf
	Threshold float64 `msgpack:"t"`
	Left      int     `msgpack:"l"`
	Right     int     `msgpack:"r"`
	Value     float64 `msgpack:"v"` // leaf output
}

// Tree is a single fitted regression tree.
type Tree struct {
	Nodes []TreeNode `msgpack:"nodes"`
}

// Predict walks the tree for one feature vector.
func (t *Tree) Predict(x []float64) float64 {
	i := 0
	for {
		node := t.Nodes[i]
		if node.Feature < 0 {
			return node.Value
		}
		if x[node.Feature] <= node.Threshold {
			i = node.Left
		} else {
			i = node.Right
		}
	}
}

// treeBuilder grows one tree on pseudo-residuals. Splits minimize weighted
// squared error; leaf outputs come from leafValue, which lets the boosting
// objectives (LAD median step, logistic Newton step) reuse one builder.
type treeBuilder struct {
	x         [][]float64
	target    []float64
	weight    []float64
	maxDepth  int
	minLeaf   int
	leafValue func(indices []int) float64
	nodes     []TreeNode
}

func (b *treeBuilder) buildTree(indices []int) *Tree {
	b.nodes = b.nodes[:0]
	b.grow(indices, 0)
	nodes := make([]TreeNode, len(b.nodes))
	copy(nodes, b.nodes)
	return &Tree{Nodes: nodes}
}

// grow appends the subtree for indices and returns its root node index.
func (b *treeBuilder) grow(indices []int, depth int) int {
	nodeIndex := len(b.nodes)
	b.nodes = append(b.nodes, TreeNode{Feature: -1})

	if depth < b.maxDepth && len(indices) >= 2*b.minLeaf {
		if feature, threshold, ok := b.bestSplit(indices); ok {
			var left, right []int
			for _, i := range indices {
				if b.x[i][feature] <= threshold {
					left = append(left, i)
				} else {
					right = append(right, i)
				}
			}

			leftIndex := b.grow(left, depth+1)
			rightIndex := b.grow(right, depth+1)
			b.nodes[nodeIndex] = TreeNode{
				Feature:   feature,
				Threshold: threshold,
				Left:      leftIndex,
				Right:     rightIndex,
			}
			return nodeIndex
		}
	}

	b.nodes[nodeIndex].Value = b.leafValue(indices)
	return nodeIndex
}

// bestSplit scans every feature for the weighted-SSE-minimizing split.
// Features are scanned in index order and ties keep the first candidate,
// so identical inputs always grow identical trees.
func (b *treeBuilder) bestSplit(indices []int) (feature int, threshold float64, ok bool) {
	type sample struct {
		value  float64
		target float64
		weight float64
	}

	var parentW, parentWT, parentWTT float64
	for _, i := range indices {
		w, t := b.weight[i], b.target[i]
		parentW += w
		parentWT += w * t
		parentWTT += w * t * t
	}
	if parentW == 0 {
		return 0, 0, false
	}
	parentSSE := parentWTT - parentWT*parentWT/parentW

	bestGain := 1e-12
	samples := make([]sample, len(indices))

	for f := range b.x[indices[0]] {
		for j, i := range indices {
			samples[j] = sample{value: b.x[i][f], target: b.target[i], weight: b.weight[i]}
		}
		sort.Slice(samples, func(a, c int) bool { return samples[a].value < samples[c].value })

		var leftW, leftWT, leftWTT float64
		for j := 0; j < len(samples)-1; j++ {
			s := samples[j]
			leftW += s.weight
			leftWT += s.weight * s.target
			leftWTT += s.weight * s.target * s.target

			// no split between equal values
			if samples[j+1].value == s.value {
				continue
			}
			if j+1 < b.minLeaf || len(samples)-j-1 < b.minLeaf {
				continue
			}

			rightW := parentW - leftW
			if leftW == 0 || rightW == 0 {
				continue
			}
			leftSSE := leftWTT - leftWT*leftWT/leftW
			rightWT := parentWT - leftWT
			rightWTT := parentWTT - leftWTT
			rightSSE := rightWTT - rightWT*rightWT/rightW

			gain := parentSSE - leftSSE - rightSSE
			if gain > bestGain {
				bestGain = gain
				feature = f
				threshold = (s.value + samples[j+1].value) / 2
				ok = true
			}
		}
	}

	return feature, threshold, ok
}
