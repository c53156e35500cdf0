package ml

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
)

type TreeParams struct {
	MaxDepth        int   `json:"max_depth"`
	MinSamplesSplit int   `json:"min_samples_split"`
	MaxFeatures     int   `json:"max_features"`
	Seed            int64 `json:"seed"`
}

// DecisionTree is a Gini CART classifier stored as a flat node array so it
// serialises without pointers. A MaxDepth of zero grows until leaves are pure.
type DecisionTree struct {
	Params  TreeParams `json:"params"`
	Classes int        `json:"classes"`
	Nodes   []TreeNode `json:"nodes"`
}

type TreeNode struct {
	FeatureIdx int     `json:"feature_idx"`
	Threshold  float64 `json:"threshold"`
	LeftChild  int     `json:"left_child"`
	RightChild int     `json:"right_child"`
	ClassLabel int     `json:"class_label"`
	Confidence float64 `json:"confidence"`
	IsLeaf     bool    `json:"is_leaf"`
}

func NewDecisionTree(params TreeParams) *DecisionTree {
	if params.MinSamplesSplit < 2 {
		params.MinSamplesSplit = 2
	}
	return &DecisionTree{Params: params}
}

func (dt *DecisionTree) Train(features [][]float64, labels []int) error {
	classes, err := checkTrainingSet(features, labels)
	if err != nil {
		return err
	}
	if dt.Classes < classes {
		dt.Classes = classes
	}
	if dt.Params.MinSamplesSplit < 2 {
		dt.Params.MinSamplesSplit = 2
	}

	indices := make([]int, len(features))
	for i := range indices {
		indices[i] = i
	}
	rng := rand.New(rand.NewSource(dt.Params.Seed))
	dt.Nodes = dt.Nodes[:0]
	dt.buildNode(features, labels, indices, 0, rng)
	return nil
}

func (dt *DecisionTree) Predict(features []float64) (int, float64, error) {
	if len(dt.Nodes) == 0 {
		return 0, 0, errors.New("model not trained")
	}
	idx := 0
	for steps := 0; steps <= len(dt.Nodes); steps++ {
		node := dt.Nodes[idx]
		if node.IsLeaf {
			return node.ClassLabel, node.Confidence, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return 0, 0, errors.New("feature index out of range")
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx < 0 || idx >= len(dt.Nodes) {
			return 0, 0, errors.New("invalid tree state")
		}
	}
	return 0, 0, errors.New("invalid tree state: cycle")
}

func (dt *DecisionTree) NumClasses() int {
	return dt.Classes
}

func (dt *DecisionTree) Depth() int {
	if len(dt.Nodes) == 0 {
		return 0
	}
	return dt.depthOf(0)
}

func (dt *DecisionTree) depthOf(idx int) int {
	node := dt.Nodes[idx]
	if node.IsLeaf {
		return 0
	}
	left := dt.depthOf(node.LeftChild)
	right := dt.depthOf(node.RightChild)
	if left > right {
		return left + 1
	}
	return right + 1
}

func (dt *DecisionTree) validate() error {
	if len(dt.Nodes) == 0 {
		return errors.New("decision tree has no nodes")
	}
	for i, node := range dt.Nodes {
		if node.IsLeaf {
			if node.ClassLabel < 0 || node.ClassLabel >= dt.Classes {
				return fmt.Errorf("node %d has class %d outside [0, %d)", i, node.ClassLabel, dt.Classes)
			}
			continue
		}
		if node.LeftChild <= i || node.RightChild <= i || node.LeftChild >= len(dt.Nodes) || node.RightChild >= len(dt.Nodes) {
			return fmt.Errorf("node %d has invalid children", i)
		}
	}
	return nil
}

// buildNode appends the subtree for indices and returns its root position.
// Children are always appended after their parent.
func (dt *DecisionTree) buildNode(features [][]float64, labels []int, indices []int, depth int, rng *rand.Rand) int {
	counts := classCounts(labels, indices, dt.Classes)
	label, confidence := majorityLabel(counts, len(indices))

	position := len(dt.Nodes)
	dt.Nodes = append(dt.Nodes, TreeNode{
		FeatureIdx: -1,
		LeftChild:  -1,
		RightChild: -1,
		ClassLabel: label,
		Confidence: confidence,
		IsLeaf:     true,
	})

	if dt.Params.MaxDepth > 0 && depth >= dt.Params.MaxDepth {
		return position
	}
	if len(indices) < dt.Params.MinSamplesSplit || isPure(counts) {
		return position
	}

	feature, threshold, ok := dt.findBestSplit(features, labels, indices, counts, rng)
	if !ok {
		return position
	}
	left, right := splitIndices(features, indices, feature, threshold)
	if len(left) == 0 || len(right) == 0 {
		return position
	}

	leftChild := dt.buildNode(features, labels, left, depth+1, rng)
	rightChild := dt.buildNode(features, labels, right, depth+1, rng)
	dt.Nodes[position] = TreeNode{
		FeatureIdx: feature,
		Threshold:  threshold,
		LeftChild:  leftChild,
		RightChild: rightChild,
		ClassLabel: label,
		Confidence: confidence,
		IsLeaf:     false,
	}
	return position
}

func (dt *DecisionTree) findBestSplit(features [][]float64, labels []int, indices []int, total []int, rng *rand.Rand) (int, float64, bool) {
	candidates := dt.candidateFeatures(len(features[0]), rng)
	bestFeature := -1
	bestThreshold := 0.0
	bestImpurity := math.MaxFloat64

	sorted := make([]int, len(indices))
	leftCounts := make([]int, dt.Classes)
	rightCounts := make([]int, dt.Classes)
	n := float64(len(indices))

	for _, featureIdx := range candidates {
		copy(sorted, indices)
		sort.SliceStable(sorted, func(a, b int) bool {
			return features[sorted[a]][featureIdx] < features[sorted[b]][featureIdx]
		})
		for c := range leftCounts {
			leftCounts[c] = 0
			rightCounts[c] = total[c]
		}
		for i := 0; i < len(sorted)-1; i++ {
			class := labels[sorted[i]]
			leftCounts[class]++
			rightCounts[class]--

			value := features[sorted[i]][featureIdx]
			next := features[sorted[i+1]][featureIdx]
			if value == next {
				continue
			}
			nl := float64(i + 1)
			nr := n - nl
			impurity := (nl/n)*giniCounts(leftCounts, nl) + (nr/n)*giniCounts(rightCounts, nr)
			if impurity < bestImpurity {
				bestImpurity = impurity
				bestFeature = featureIdx
				bestThreshold = midpoint(value, next)
			}
		}
	}
	if bestFeature == -1 {
		return -1, 0, false
	}
	return bestFeature, bestThreshold, true
}

func (dt *DecisionTree) candidateFeatures(featureCount int, rng *rand.Rand) []int {
	if dt.Params.MaxFeatures <= 0 || dt.Params.MaxFeatures >= featureCount {
		all := make([]int, featureCount)
		for i := range all {
			all[i] = i
		}
		return all
	}
	picked := rng.Perm(featureCount)[:dt.Params.MaxFeatures]
	sort.Ints(picked)
	return picked
}

func checkTrainingSet(features [][]float64, labels []int) (int, error) {
	if len(features) == 0 || len(labels) == 0 {
		return 0, errors.New("features or labels empty")
	}
	if len(features) != len(labels) {
		return 0, errors.New("features and labels size mismatch")
	}
	width := len(features[0])
	if width == 0 {
		return 0, errors.New("features have no columns")
	}
	classes := 0
	for i, row := range features {
		if len(row) != width {
			return 0, fmt.Errorf("row %d has %d features, want %d", i, len(row), width)
		}
		if labels[i] < 0 {
			return 0, fmt.Errorf("row %d has negative class %d", i, labels[i])
		}
		if labels[i]+1 > classes {
			classes = labels[i] + 1
		}
	}
	return classes, nil
}

func splitIndices(features [][]float64, indices []int, featureIdx int, threshold float64) ([]int, []int) {
	left := make([]int, 0, len(indices))
	right := make([]int, 0, len(indices))
	for _, i := range indices {
		if features[i][featureIdx] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return left, right
}

func classCounts(labels []int, indices []int, classes int) []int {
	counts := make([]int, classes)
	for _, i := range indices {
		counts[labels[i]]++
	}
	return counts
}

func giniCounts(counts []int, total float64) float64 {
	if total == 0 {
		return 0
	}
	impurity := 1.0
	for _, count := range counts {
		prob := float64(count) / total
		impurity -= prob * prob
	}
	return impurity
}

func midpoint(low, high float64) float64 {
	mid := low + (high-low)/2
	if mid >= high {
		return low
	}
	return mid
}

// majorityLabel breaks ties toward the smallest class.
func majorityLabel(counts []int, total int) (int, float64) {
	bestLabel := 0
	bestCount := -1
	for label, count := range counts {
		if count > bestCount {
			bestCount = count
			bestLabel = label
		}
	}
	if total == 0 {
		return bestLabel, 0
	}
	return bestLabel, float64(bestCount) / float64(total)
}

func isPure(counts []int) bool {
	nonZero := 0
	for _, count := range counts {
		if count > 0 {
			nonZero++
		}
	}
	return nonZero <= 1
}
