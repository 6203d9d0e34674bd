package ml

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	EstimatorDecisionTree = "decision_tree_classifier"
	EstimatorRandomForest = "random_forest_classifier"
	EstimatorRidge        = "ridge"
)

type envelope struct {
	Estimator string          `json:"estimator"`
	Params    json.RawMessage `json:"params"`
}

// DecodeArtifact restores a fitted estimator from its serialized blob.
func DecodeArtifact(blob []byte) (Estimator, error) {
	var env envelope
	if err := json.Unmarshal(blob, &env); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	if len(env.Params) == 0 {
		return nil, errors.New("decode artifact: missing params")
	}

	var model interface {
		Estimator
		validate() error
	}
	switch env.Estimator {
	case EstimatorDecisionTree:
		model = &DecisionTree{}
	case EstimatorRandomForest:
		model = &RandomForest{}
	case EstimatorRidge:
		model = &Ridge{}
	default:
		return nil, fmt.Errorf("unsupported estimator %q", env.Estimator)
	}
	if err := json.Unmarshal(env.Params, model); err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Estimator, err)
	}
	if err := model.validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", env.Estimator, err)
	}
	return model, nil
}

func EncodeArtifact(model Estimator) ([]byte, error) {
	var name string
	switch model.(type) {
	case *DecisionTree:
		name = EstimatorDecisionTree
	case *RandomForest:
		name = EstimatorRandomForest
	case *Ridge:
		name = EstimatorRidge
	default:
		return nil, fmt.Errorf("unsupported estimator %T", model)
	}
	params, err := json.Marshal(model)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Estimator: name, Params: params})
}

func DecodeMetadata(blob []byte) (Metadata, error) {
	var meta Metadata
	if err := json.Unmarshal(blob, &meta); err != nil {
		return Metadata{}, fmt.Errorf("decode metadata: %w", err)
	}
	return meta, nil
}

func EncodeMetadata(meta Metadata) ([]byte, error) {
	return json.MarshalIndent(meta, "", "  ")
}
