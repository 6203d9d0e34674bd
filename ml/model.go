package ml

import "fmt"

// Kind is the output shape of a fitted model.
type Kind string

const (
	KindClassification Kind = "classification"
	KindRegression     Kind = "regression"
)

func (k Kind) String() string {
	return string(k)
}

// ParseKind accepts only the two known kinds.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindClassification:
		return KindClassification, nil
	case KindRegression:
		return KindRegression, nil
	default:
		return "", fmt.Errorf("unsupported model type %q", s)
	}
}

// Estimator is a fitted model consumed only through its decision function.
type Estimator interface {
	Name() string
	NumFeatures() int
}

// Classifier returns, for every sample, the predicted class id and the
// probability distribution over classes. The class id is the first index
// holding the maximum probability.
type Classifier interface {
	Estimator
	NumClasses() int
	PredictProba(samples [][]float64) ([]int, [][]float64, error)
}

// Regressor returns one scalar per sample.
type Regressor interface {
	Estimator
	Predict(samples [][]float64) ([]float64, error)
}

// Metadata travels next to the serialized estimator.
type Metadata struct {
	ModelType    string   `json:"model_type"`
	FeatureNames []string `json:"feature_names"`
	TargetNames  []string `json:"target_names,omitempty"`
	Target       string   `json:"target,omitempty"`
	NFeatures    int      `json:"n_features"`
}

func argmax(values []float64) int {
	best := 0
	for i := 1; i < len(values); i++ {
		if values[i] > values[best] {
			best = i
		}
	}
	return best
}

func checkSamples(samples [][]float64, features int) error {
	for i, sample := range samples {
		if len(sample) != features {
			return fmt.Errorf("sample %d has %d features, expected %d", i, len(sample), features)
		}
	}
	return nil
}
