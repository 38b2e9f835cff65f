package alerter

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// TreeModel is a depth-bounded binary classification tree split on gini
// impurity, the interpretable counterpart to the logistic model.
type TreeModel struct {
	MaxDepth int       `json:"max_depth"`
	Root     *TreeNode `json:"root"`
}

type TreeNode struct {
	Leaf      bool      `json:"leaf"`
	Class     int       `json:"class,omitempty"`
	Prob      float64   `json:"prob"` // class-1 fraction at this node
	Feature   int       `json:"feature,omitempty"`
	Threshold float64   `json:"threshold,omitempty"`
	Left      *TreeNode `json:"left,omitempty"`
	Right     *TreeNode `json:"right,omitempty"`
}

const treeMinLeaf = 2

// TrainTree grows the tree greedily up to maxDepth. Splits are evaluated on
// midpoints between consecutive distinct values, lowest feature index first,
// so the fit is deterministic.
func TrainTree(x [][]float64, y []int, maxDepth int) (*TreeModel, error) {
	if len(x) == 0 {
		return nil, fmt.Errorf("train tree: no rows")
	}
	if len(x) != len(y) {
		return nil, fmt.Errorf("train tree: %d rows vs %d labels", len(x), len(y))
	}
	if maxDepth <= 0 {
		maxDepth = 5
	}
	idx := make([]int, len(x))
	for i := range idx {
		idx[i] = i
	}
	return &TreeModel{MaxDepth: maxDepth, Root: growNode(x, y, idx, 0, maxDepth)}, nil
}

func growNode(x [][]float64, y []int, idx []int, depth, maxDepth int) *TreeNode {
	ones := 0
	for _, i := range idx {
		ones += y[i]
	}
	prob := float64(ones) / float64(len(idx))
	node := &TreeNode{Prob: prob}
	if prob >= 0.5 {
		node.Class = 1
	}

	if depth >= maxDepth || len(idx) < 2*treeMinLeaf || ones == 0 || ones == len(idx) {
		node.Leaf = true
		return node
	}

	feature, threshold, ok := bestSplit(x, y, idx)
	if !ok {
		node.Leaf = true
		return node
	}

	var left, right []int
	for _, i := range idx {
		if x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) < treeMinLeaf || len(right) < treeMinLeaf {
		node.Leaf = true
		return node
	}

	node.Feature = feature
	node.Threshold = threshold
	node.Left = growNode(x, y, left, depth+1, maxDepth)
	node.Right = growNode(x, y, right, depth+1, maxDepth)
	return node
}

func bestSplit(x [][]float64, y []int, idx []int) (int, float64, bool) {
	bestGini := giniOf(y, idx)
	bestFeature, bestThreshold := -1, 0.0
	dims := len(x[idx[0]])

	for f := 0; f < dims; f++ {
		values := make([]float64, 0, len(idx))
		for _, i := range idx {
			values = append(values, x[i][f])
		}
		sort.Float64s(values)

		for vi := 0; vi+1 < len(values); vi++ {
			if values[vi] == values[vi+1] {
				continue
			}
			threshold := (values[vi] + values[vi+1]) / 2

			var lN, lOnes, rN, rOnes int
			for _, i := range idx {
				if x[i][f] <= threshold {
					lN++
					lOnes += y[i]
				} else {
					rN++
					rOnes += y[i]
				}
			}
			if lN == 0 || rN == 0 {
				continue
			}
			g := (float64(lN)*giniCounts(lOnes, lN) + float64(rN)*giniCounts(rOnes, rN)) / float64(len(idx))
			if g < bestGini-1e-12 {
				bestGini = g
				bestFeature = f
				bestThreshold = threshold
			}
		}
	}
	if bestFeature < 0 {
		return 0, 0, false
	}
	return bestFeature, bestThreshold, true
}

func giniOf(y []int, idx []int) float64 {
	ones := 0
	for _, i := range idx {
		ones += y[i]
	}
	return giniCounts(ones, len(idx))
}

func giniCounts(ones, n int) float64 {
	p := float64(ones) / float64(n)
	return 2 * p * (1 - p)
}

// Predict returns the predicted class and the class-1 fraction of the leaf
// the row lands in.
func (m *TreeModel) Predict(row []float64) (int, float64) {
	node := m.Root
	for node != nil && !node.Leaf {
		if node.Feature < len(row) && row[node.Feature] <= node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	if node == nil {
		return 0, 0
	}
	return node.Class, node.Prob
}

func (m *TreeModel) Save(path string) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func LoadTree(path string) (*TreeModel, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load tree model: %w", err)
	}
	var m TreeModel
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("load tree model %s: %w", path, err)
	}
	if m.Root == nil {
		return nil, fmt.Errorf("load tree model %s: empty tree", path)
	}
	return &m, nil
}
