// Package mltest provides small hand-built models for tests.
package mltest

import "github.com/iclim/ml-app/ml"

var IrisFeatureNames = []string{
	"sepal length (cm)",
	"sepal width (cm)",
	"petal length (cm)",
	"petal width (cm)",
}

var IrisTargetNames = []string{"setosa", "versicolor", "virginica"}

var DiabetesFeatureNames = []string{"age", "sex", "bmi", "bp", "s1", "s2", "s3", "s4", "s5", "s6"}

// IrisTree separates setosa on petal length and splits the rest on petal
// width.
func IrisTree() *ml.DecisionTree {
	return &ml.DecisionTree{
		Classes:  3,
		Features: 4,
		MaxDepth: 2,
		Nodes: []ml.TreeNode{
			{FeatureIdx: 2, Threshold: 2.45, LeftChild: 1, RightChild: 2},
			{FeatureIdx: -1, LeftChild: -1, RightChild: -1, ClassLabel: 0, IsLeaf: true, Distribution: []float64{1, 0, 0}},
			{FeatureIdx: 3, Threshold: 1.75, LeftChild: 3, RightChild: 4, ClassLabel: 1},
			{FeatureIdx: -1, LeftChild: -1, RightChild: -1, ClassLabel: 1, IsLeaf: true, Distribution: []float64{0, 0.9074, 0.0926}},
			{FeatureIdx: -1, LeftChild: -1, RightChild: -1, ClassLabel: 2, IsLeaf: true, Distribution: []float64{0, 0.0217, 0.9783}},
		},
	}
}

// TiedTree always returns an even split between the first two classes.
func TiedTree() *ml.DecisionTree {
	return &ml.DecisionTree{
		Classes:  3,
		Features: 4,
		MaxDepth: 1,
		Nodes: []ml.TreeNode{
			{FeatureIdx: -1, LeftChild: -1, RightChild: -1, IsLeaf: true, Distribution: []float64{0.5, 0.5, 0}},
		},
	}
}

func IrisMetadata() ml.Metadata {
	return ml.Metadata{
		ModelType:    string(ml.KindClassification),
		FeatureNames: append([]string(nil), IrisFeatureNames...),
		TargetNames:  append([]string(nil), IrisTargetNames...),
		NFeatures:    4,
	}
}

// DiabetesRidge carries coefficients of a ridge fit on the diabetes data.
func DiabetesRidge() *ml.Ridge {
	return &ml.Ridge{
		Alpha:     1,
		Coef:      []float64{45.37, -76.67, 291.34, 198.99, -0.53, -28.58, -144.51, 119.26, 230.22, 112.15},
		Intercept: 152.24,
	}
}

func DiabetesMetadata() ml.Metadata {
	return ml.Metadata{
		ModelType:    string(ml.KindRegression),
		FeatureNames: append([]string(nil), DiabetesFeatureNames...),
		Target:       "disease_progression",
		NFeatures:    10,
	}
}

var (
	SetosaSample    = []float64{5.1, 3.5, 1.4, 0.2}
	VirginicaSample = []float64{6.3, 3.3, 6.0, 2.5}
	DiabetesSample  = []float64{0.038, 0.051, 0.062, 0.022, -0.044, -0.035, -0.043, -0.003, 0.020, -0.018}
)

// MustEncode serializes an estimator and its metadata, panicking on error.
func MustEncode(model ml.Estimator, meta ml.Metadata) (modelBlob, metaBlob []byte) {
	var err error
	modelBlob, err = ml.EncodeArtifact(model)
	if err != nil {
		panic(err)
	}
	metaBlob, err = ml.EncodeMetadata(meta)
	if err != nil {
		panic(err)
	}
	return modelBlob, metaBlob
}
