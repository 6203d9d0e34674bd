package ml

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// DecisionTree is a CART classifier split on feature medians by Gini
// impurity. Leaves keep the class distribution of their training samples.
type DecisionTree struct {
	Nodes     []TreeNode `json:"nodes"`
	Classes   int        `json:"n_classes"`
	Features  int        `json:"n_features"`
	MaxDepth  int        `json:"max_depth"`
	MaxSplits int        `json:"max_features,omitempty"`

	rnd *rand.Rand
}

type TreeNode struct {
	FeatureIdx   int       `json:"feature_idx"`
	Threshold    float64   `json:"threshold"`
	LeftChild    int       `json:"left_child"`
	RightChild   int       `json:"right_child"`
	ClassLabel   int       `json:"class_label"`
	IsLeaf       bool      `json:"is_leaf"`
	Distribution []float64 `json:"distribution,omitempty"`
}

// NewDecisionTree returns an untrained tree. maxFeatures limits how many
// randomly chosen features are tried per split; zero tries all of them.
func NewDecisionTree(maxDepth, maxFeatures int, seed int64) *DecisionTree {
	if maxDepth <= 0 {
		maxDepth = 3
	}
	return &DecisionTree{
		MaxDepth:  maxDepth,
		MaxSplits: maxFeatures,
		rnd:       rand.New(rand.NewSource(seed)),
	}
}

func (dt *DecisionTree) Name() string     { return "DecisionTreeClassifier" }
func (dt *DecisionTree) NumFeatures() int { return dt.Features }
func (dt *DecisionTree) NumClasses() int  { return dt.Classes }

func (dt *DecisionTree) Train(features [][]float64, labels []int, classes int) error {
	if len(features) == 0 || len(labels) == 0 {
		return errors.New("features or labels empty")
	}
	if len(features) != len(labels) {
		return errors.New("features and labels size mismatch")
	}
	if classes <= 0 {
		return errors.New("class count must be positive")
	}
	for _, label := range labels {
		if label < 0 || label >= classes {
			return fmt.Errorf("label %d out of range [0,%d)", label, classes)
		}
	}
	width := len(features[0])
	if err := checkSamples(features, width); err != nil {
		return err
	}
	if dt.MaxDepth <= 0 {
		dt.MaxDepth = 3
	}
	if dt.rnd == nil {
		dt.rnd = rand.New(rand.NewSource(0))
	}

	dt.Classes = classes
	dt.Features = width
	dt.Nodes = nil
	dt.Nodes = dt.buildNode(features, labels, 0)
	return nil
}

func (dt *DecisionTree) PredictProba(samples [][]float64) ([]int, [][]float64, error) {
	if len(dt.Nodes) == 0 {
		return nil, nil, errors.New("model not trained")
	}
	if err := checkSamples(samples, dt.Features); err != nil {
		return nil, nil, err
	}
	ids := make([]int, len(samples))
	proba := make([][]float64, len(samples))
	for i, sample := range samples {
		leaf, err := dt.leaf(sample)
		if err != nil {
			return nil, nil, err
		}
		row := make([]float64, dt.Classes)
		copy(row, leaf.Distribution)
		proba[i] = row
		ids[i] = argmax(row)
	}
	return ids, proba, nil
}

func (dt *DecisionTree) leaf(features []float64) (*TreeNode, error) {
	idx := 0
	for steps := 0; steps <= len(dt.Nodes); steps++ {
		node := &dt.Nodes[idx]
		if node.IsLeaf {
			return node, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return nil, errors.New("feature index out of range")
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx < 0 || idx >= len(dt.Nodes) {
			return nil, errors.New("invalid tree state")
		}
	}
	return nil, errors.New("invalid tree state: cycle detected")
}

// validate checks a deserialized tree before it is used for inference.
func (dt *DecisionTree) validate() error {
	if len(dt.Nodes) == 0 {
		return errors.New("tree has no nodes")
	}
	if dt.Classes <= 0 || dt.Features <= 0 {
		return errors.New("tree is missing class or feature counts")
	}
	for i, node := range dt.Nodes {
		if node.IsLeaf {
			if len(node.Distribution) != dt.Classes {
				return fmt.Errorf("leaf %d has %d class weights, expected %d", i, len(node.Distribution), dt.Classes)
			}
			continue
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= dt.Features {
			return fmt.Errorf("node %d splits on feature %d out of range", i, node.FeatureIdx)
		}
		if node.LeftChild <= i || node.LeftChild >= len(dt.Nodes) || node.RightChild <= i || node.RightChild >= len(dt.Nodes) {
			return fmt.Errorf("node %d has invalid children", i)
		}
	}
	return nil
}

func (dt *DecisionTree) buildNode(features [][]float64, labels []int, depth int) []TreeNode {
	distribution := classDistribution(labels, dt.Classes)
	leaf := []TreeNode{{
		FeatureIdx:   -1,
		LeftChild:    -1,
		RightChild:   -1,
		ClassLabel:   argmax(distribution),
		IsLeaf:       true,
		Distribution: distribution,
	}}
	if depth >= dt.MaxDepth || isPure(labels) {
		return leaf
	}

	bestFeature, threshold, ok := findBestSplit(features, labels, dt.candidateFeatures())
	if !ok {
		return leaf
	}

	leftFeatures, leftLabels, rightFeatures, rightLabels := splitData(features, labels, bestFeature, threshold)
	if len(leftLabels) == 0 || len(rightLabels) == 0 {
		return leaf
	}

	leftNodes := dt.buildNode(leftFeatures, leftLabels, depth+1)
	rightNodes := dt.buildNode(rightFeatures, rightLabels, depth+1)

	root := TreeNode{
		FeatureIdx: bestFeature,
		Threshold:  threshold,
		LeftChild:  1,
		RightChild: 1 + len(leftNodes),
		ClassLabel: leaf[0].ClassLabel,
	}

	nodes := make([]TreeNode, 0, 1+len(leftNodes)+len(rightNodes))
	nodes = append(nodes, root)
	nodes = append(nodes, shiftChildren(leftNodes, 1)...)
	nodes = append(nodes, shiftChildren(rightNodes, 1+len(leftNodes))...)
	return nodes
}

// shiftChildren rebases the child indexes of a subtree placed at offset.
func shiftChildren(nodes []TreeNode, offset int) []TreeNode {
	for i := range nodes {
		if nodes[i].IsLeaf {
			continue
		}
		nodes[i].LeftChild += offset
		nodes[i].RightChild += offset
	}
	return nodes
}

func (dt *DecisionTree) candidateFeatures() []int {
	if dt.MaxSplits <= 0 || dt.MaxSplits >= dt.Features {
		all := make([]int, dt.Features)
		for i := range all {
			all[i] = i
		}
		return all
	}
	picked := dt.rnd.Perm(dt.Features)[:dt.MaxSplits]
	sort.Ints(picked)
	return picked
}

func findBestSplit(features [][]float64, labels []int, candidates []int) (int, float64, bool) {
	bestFeature := -1
	bestThreshold := 0.0
	bestImpurity := math.MaxFloat64

	for _, featureIdx := range candidates {
		values := make([]float64, len(features))
		for i := range features {
			values[i] = features[i][featureIdx]
		}
		threshold := median(values)
		leftLabels, rightLabels := splitLabels(features, labels, featureIdx, threshold)
		if len(leftLabels) == 0 || len(rightLabels) == 0 {
			continue
		}
		impurity := weightedGini(leftLabels, rightLabels)
		if impurity < bestImpurity {
			bestImpurity = impurity
			bestFeature = featureIdx
			bestThreshold = threshold
		}
	}
	if bestFeature == -1 {
		return -1, 0, false
	}
	return bestFeature, bestThreshold, true
}

func splitData(features [][]float64, labels []int, featureIdx int, threshold float64) ([][]float64, []int, [][]float64, []int) {
	leftFeatures := make([][]float64, 0)
	leftLabels := make([]int, 0)
	rightFeatures := make([][]float64, 0)
	rightLabels := make([]int, 0)
	for i, feature := range features {
		if feature[featureIdx] <= threshold {
			leftFeatures = append(leftFeatures, feature)
			leftLabels = append(leftLabels, labels[i])
		} else {
			rightFeatures = append(rightFeatures, feature)
			rightLabels = append(rightLabels, labels[i])
		}
	}
	return leftFeatures, leftLabels, rightFeatures, rightLabels
}

func splitLabels(features [][]float64, labels []int, featureIdx int, threshold float64) ([]int, []int) {
	leftLabels := make([]int, 0)
	rightLabels := make([]int, 0)
	for i, feature := range features {
		if feature[featureIdx] <= threshold {
			leftLabels = append(leftLabels, labels[i])
		} else {
			rightLabels = append(rightLabels, labels[i])
		}
	}
	return leftLabels, rightLabels
}

func weightedGini(leftLabels, rightLabels []int) float64 {
	leftWeight := float64(len(leftLabels))
	rightWeight := float64(len(rightLabels))
	total := leftWeight + rightWeight
	return (leftWeight/total)*gini(leftLabels) + (rightWeight/total)*gini(rightLabels)
}

func gini(labels []int) float64 {
	if len(labels) == 0 {
		return 0
	}
	counts := make(map[int]int)
	for _, label := range labels {
		counts[label]++
	}
	impurity := 1.0
	for _, count := range counts {
		prob := float64(count) / float64(len(labels))
		impurity -= prob * prob
	}
	return impurity
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func classDistribution(labels []int, classes int) []float64 {
	distribution := make([]float64, classes)
	if len(labels) == 0 {
		return distribution
	}
	for _, label := range labels {
		distribution[label]++
	}
	for i := range distribution {
		distribution[i] /= float64(len(labels))
	}
	return distribution
}

func isPure(labels []int) bool {
	if len(labels) == 0 {
		return true
	}
	first := labels[0]
	for _, label := range labels[1:] {
		if label != first {
			return false
		}
	}
	return true
}
