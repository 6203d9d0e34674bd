package registry

import (
	"math"

	"github.com/iclim/ml-app/ml"
)

const probabilityTolerance = 1e-9

// Prediction is a tagged union: exactly one of Classification or
// Regression is set, matching Kind.
type Prediction struct {
	Kind           ml.Kind
	Classification *ClassPrediction
	Regression     *RegressionPrediction
}

type ClassPrediction struct {
	Label      string
	ClassID    int
	Confidence float64
}

// RegressionPrediction has no confidence measure yet; Confidence is always
// nil.
type RegressionPrediction struct {
	Value      float64
	Confidence *float64
}

func NewClassPrediction(label string, classID int, confidence float64) Prediction {
	return Prediction{
		Kind:           ml.KindClassification,
		Classification: &ClassPrediction{Label: label, ClassID: classID, Confidence: confidence},
	}
}

func NewRegressionPrediction(value float64) Prediction {
	return Prediction{
		Kind:       ml.KindRegression,
		Regression: &RegressionPrediction{Value: value},
	}
}

// Visit calls the function matching the variant. Both must be provided.
func (p Prediction) Visit(onClass func(ClassPrediction) error, onRegression func(RegressionPrediction) error) error {
	switch {
	case p.Kind == ml.KindClassification && p.Classification != nil:
		return onClass(*p.Classification)
	case p.Kind == ml.KindRegression && p.Regression != nil:
		return onRegression(*p.Regression)
	default:
		return ErrInvalidModelState
	}
}

// normalizeClasses turns raw decision function output into predictions.
func normalizeClasses(ids []int, proba [][]float64, targetNames []string) ([]Prediction, error) {
	if len(ids) != len(proba) {
		return nil, ErrInvalidModelState
	}
	predictions := make([]Prediction, len(ids))
	for i, id := range ids {
		if id < 0 || id >= len(targetNames) {
			return nil, ErrInvalidModelState
		}
		if !finite(proba[i]...) {
			return nil, ErrInvalidModelState
		}
		confidence := maxProbability(proba[i])
		if confidence > 1 && confidence-1 < probabilityTolerance {
			confidence = 1
		}
		if confidence < 0 || confidence > 1 {
			return nil, ErrInvalidModelState
		}
		predictions[i] = NewClassPrediction(targetNames[id], id, confidence)
	}
	return predictions, nil
}

// normalizeValues rejects NaN and ±Inf outputs, which have no JSON form.
func normalizeValues(values []float64) ([]Prediction, error) {
	predictions := make([]Prediction, len(values))
	for i, v := range values {
		if !finite(v) {
			return nil, ErrInvalidModelState
		}
		predictions[i] = NewRegressionPrediction(v)
	}
	return predictions, nil
}

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// clone copies the variant so callers never share it with the cache.
func (p Prediction) clone() Prediction {
	if p.Classification != nil {
		c := *p.Classification
		p.Classification = &c
	}
	if p.Regression != nil {
		r := *p.Regression
		p.Regression = &r
	}
	return p
}

func maxProbability(row []float64) float64 {
	if len(row) == 0 {
		return -1
	}
	best := row[0]
	for _, p := range row[1:] {
		if p > best {
			best = p
		}
	}
	return best
}
