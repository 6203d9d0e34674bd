package ml

import (
	"math"
	"testing"
)

func TestDecisionTreeTrainPredict(t *testing.T) {
	features := [][]float64{
		{0.1, 0.2},
		{0.2, 0.1},
		{0.9, 0.8},
		{0.8, 0.9},
	}
	labels := []int{0, 0, 2, 2}

	model := NewDecisionTree(2, 0, 1)
	if err := model.Train(features, labels, 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ids, proba, err := model.PredictProba([][]float64{{0.15, 0.15}, {0.85, 0.85}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ids[0] != 0 || ids[1] != 2 {
		t.Fatalf("expected labels [0 2], got %v", ids)
	}
	if proba[0][0] != 1 {
		t.Fatalf("expected pure leaf probability, got %v", proba[0])
	}
	if err := model.validate(); err != nil {
		t.Fatalf("trained tree should validate: %v", err)
	}
}

func TestDecisionTreeDeepChildIndexes(t *testing.T) {
	features := [][]float64{{1}, {2}, {3}, {4}, {5}, {6}, {7}, {8}}
	labels := []int{0, 0, 1, 1, 0, 0, 1, 1}

	model := NewDecisionTree(4, 0, 1)
	if err := model.Train(features, labels, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := model.validate(); err != nil {
		t.Fatalf("tree layout invalid: %v", err)
	}
	ids, _, err := model.PredictProba(features)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if Accuracy(ids, labels) != 1 {
		t.Fatalf("expected perfect fit on training data, got %v", ids)
	}
}

func TestDecisionTreeErrors(t *testing.T) {
	tests := []struct {
		name     string
		features [][]float64
		labels   []int
		classes  int
	}{
		{name: "empty", classes: 2},
		{name: "size mismatch", features: [][]float64{{1}}, labels: []int{0, 1}, classes: 2},
		{name: "label out of range", features: [][]float64{{1}}, labels: []int{3}, classes: 2},
		{name: "ragged", features: [][]float64{{1, 2}, {1}}, labels: []int{0, 1}, classes: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := NewDecisionTree(2, 0, 1).Train(tt.features, tt.labels, tt.classes); err == nil {
				t.Fatal("expected error")
			}
		})
	}

	if _, _, err := (&DecisionTree{}).PredictProba([][]float64{{1}}); err == nil {
		t.Fatal("expected error for untrained tree")
	}
}

func TestRandomForestProbabilities(t *testing.T) {
	features := [][]float64{
		{1, 1}, {1.2, 0.8}, {0.9, 1.1}, {1.1, 1.0},
		{5, 5}, {5.2, 4.9}, {4.8, 5.1}, {5.1, 5.0},
	}
	labels := []int{0, 0, 0, 0, 1, 1, 1, 1}

	forest, err := TrainRandomForest(features, labels, 2, ForestOptions{Estimators: 15, MaxDepth: 3, Seed: 42})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := forest.validate(); err != nil {
		t.Fatalf("forest should validate: %v", err)
	}

	ids, proba, err := forest.PredictProba([][]float64{{1, 1}, {5, 5}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ids[0] != 0 || ids[1] != 1 {
		t.Fatalf("unexpected classes %v", ids)
	}
	for i, row := range proba {
		var sum float64
		for _, p := range row {
			if p < 0 || p > 1 {
				t.Fatalf("probability out of range in row %d: %v", i, row)
			}
			sum += p
		}
		if math.Abs(sum-1) > 1e-9 {
			t.Fatalf("row %d does not sum to 1: %v", i, row)
		}
	}
}

func TestArgmaxFirstMaximum(t *testing.T) {
	if got := argmax([]float64{0.4, 0.4, 0.2}); got != 0 {
		t.Fatalf("expected first maximum, got %d", got)
	}
	if got := argmax([]float64{0.1, 0.2, 0.7}); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}
}
