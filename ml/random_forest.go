package ml

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

type ForestOptions struct {
	Estimators  int
	MaxDepth    int
	MaxFeatures int
	Seed        int64
}

// RandomForest averages the class distributions of bootstrap-trained trees.
type RandomForest struct {
	Trees    []*DecisionTree `json:"trees"`
	Classes  int             `json:"n_classes"`
	Features int             `json:"n_features"`
}

func (rf *RandomForest) Name() string     { return "RandomForestClassifier" }
func (rf *RandomForest) NumFeatures() int { return rf.Features }
func (rf *RandomForest) NumClasses() int  { return rf.Classes }

func TrainRandomForest(features [][]float64, labels []int, classes int, opts ForestOptions) (*RandomForest, error) {
	if len(features) == 0 || len(features) != len(labels) {
		return nil, errors.New("features and labels must be non-empty and of equal size")
	}
	if opts.Estimators <= 0 {
		opts.Estimators = 100
	}
	width := len(features[0])
	if opts.MaxFeatures <= 0 {
		opts.MaxFeatures = int(math.Max(1, math.Floor(math.Sqrt(float64(width)))))
	}

	rnd := rand.New(rand.NewSource(opts.Seed))
	forest := &RandomForest{Classes: classes, Features: width}
	for i := 0; i < opts.Estimators; i++ {
		sampleX := make([][]float64, len(features))
		sampleY := make([]int, len(features))
		for j := range sampleX {
			k := rnd.Intn(len(features))
			sampleX[j] = features[k]
			sampleY[j] = labels[k]
		}
		tree := NewDecisionTree(opts.MaxDepth, opts.MaxFeatures, rnd.Int63())
		if err := tree.Train(sampleX, sampleY, classes); err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		forest.Trees = append(forest.Trees, tree)
	}
	return forest, nil
}

func (rf *RandomForest) PredictProba(samples [][]float64) ([]int, [][]float64, error) {
	if len(rf.Trees) == 0 {
		return nil, nil, errors.New("model not trained")
	}
	if err := checkSamples(samples, rf.Features); err != nil {
		return nil, nil, err
	}
	proba := make([][]float64, len(samples))
	for i := range proba {
		proba[i] = make([]float64, rf.Classes)
	}
	for _, tree := range rf.Trees {
		_, treeProba, err := tree.PredictProba(samples)
		if err != nil {
			return nil, nil, err
		}
		for i, row := range treeProba {
			for c, p := range row {
				proba[i][c] += p
			}
		}
	}
	ids := make([]int, len(samples))
	scale := float64(len(rf.Trees))
	for i, row := range proba {
		for c := range row {
			row[c] /= scale
		}
		ids[i] = argmax(row)
	}
	return ids, proba, nil
}

func (rf *RandomForest) validate() error {
	if len(rf.Trees) == 0 {
		return errors.New("forest has no trees")
	}
	for i, tree := range rf.Trees {
		if tree == nil {
			return fmt.Errorf("tree %d is empty", i)
		}
		if err := tree.validate(); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
		if tree.Classes != rf.Classes || tree.Features != rf.Features {
			return fmt.Errorf("tree %d shape does not match forest", i)
		}
	}
	return nil
}
