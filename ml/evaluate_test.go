package ml

import (
	"math"
	"testing"
)

func TestAccuracyAndReport(t *testing.T) {
	predicted := []int{0, 1, 1, 2, 2, 2}
	actual := []int{0, 1, 2, 2, 2, 1}

	if got := Accuracy(predicted, actual); math.Abs(got-4.0/6.0) > 1e-12 {
		t.Fatalf("unexpected accuracy %v", got)
	}

	report := ClassificationReport(predicted, actual, 3)
	if report[0].Precision != 1 || report[0].Recall != 1 {
		t.Fatalf("class 0: %+v", report[0])
	}
	if report[2].Precision != 2.0/3.0 || report[2].Recall != 2.0/3.0 || report[2].Support != 3 {
		t.Fatalf("class 2: %+v", report[2])
	}
}

func TestEvaluateRegression(t *testing.T) {
	actual := []float64{1, 2, 3, 4}
	perfect := EvaluateRegression(actual, actual)
	if perfect.R2 != 1 || perfect.MSE != 0 || perfect.RMSE != 0 {
		t.Fatalf("unexpected perfect report %+v", perfect)
	}

	shifted := EvaluateRegression([]float64{0, 1, 2, 3}, actual)
	if shifted.MSE != 1 || shifted.ResidualMean != 1 || shifted.ResidualStdev != 0 {
		t.Fatalf("unexpected shifted report %+v", shifted)
	}

	if empty := EvaluateRegression(nil, nil); empty != (RegressionReport{}) {
		t.Fatalf("expected zero report, got %+v", empty)
	}
}
