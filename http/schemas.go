package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

var (
	errMissingField = errors.New("field required")
	errNullValue    = errors.New("null is not a number")
)

// Vector is a JSON array of numbers that rejects null elements.
type Vector []float64

func (v *Vector) UnmarshalJSON(data []byte) error {
	var raw []*float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*v = nil
		return nil
	}
	out := make([]float64, len(raw))
	for i, p := range raw {
		if p == nil {
			return fmt.Errorf("index %d: %w", i, errNullValue)
		}
		out[i] = *p
	}
	*v = out
	return nil
}

type PredictRequest struct {
	Features Vector `json:"features"`
}

// validate checks the body against the catalog feature count. expected is
// zero for models that are not in the catalog.
func (req PredictRequest) validate(expected int) error {
	if req.Features == nil {
		return fmt.Errorf("features: %w", errMissingField)
	}
	if expected > 0 && len(req.Features) != expected {
		return fmt.Errorf("features: expected %d values, got %d", expected, len(req.Features))
	}
	return nil
}

type BatchPredictRequest struct {
	Samples []Vector `json:"samples"`
}

func (req BatchPredictRequest) validate(expected int) error {
	if req.Samples == nil {
		return fmt.Errorf("samples: %w", errMissingField)
	}
	if len(req.Samples) == 0 {
		return errors.New("samples: must contain at least one sample")
	}
	for i, sample := range req.Samples {
		if sample == nil {
			return fmt.Errorf("samples[%d]: %w", i, errNullValue)
		}
		if expected > 0 && len(sample) != expected {
			return fmt.Errorf("samples[%d]: expected %d values, got %d", i, expected, len(sample))
		}
	}
	return nil
}

func (req BatchPredictRequest) matrix() [][]float64 {
	samples := make([][]float64, len(req.Samples))
	for i, sample := range req.Samples {
		samples[i] = sample
	}
	return samples
}

type ClassificationResponse struct {
	Prediction   string  `json:"prediction"`
	PredictionID int     `json:"prediction_id"`
	Confidence   float64 `json:"confidence"`
}

type RegressionResponse struct {
	Prediction float64 `json:"prediction"`
}

type BatchResponse struct {
	Predictions []any `json:"predictions"`
	BatchSize   int   `json:"batch_size"`
}

type HealthResponse struct {
	Status       string `json:"status"`
	ModelLoaded  bool   `json:"model_loaded"`
	FeatureCount int    `json:"feature_count"`
	ModelType    string `json:"model_type"`
	Error        string `json:"error,omitempty"`
}

type InfoResponse struct {
	Kind         string   `json:"kind"`
	ModelType    string   `json:"model_type"`
	FeatureNames []string `json:"feature_names"`
	TargetNames  []string `json:"target_names,omitempty"`
	Target       string   `json:"target,omitempty"`
	NFeatures    int      `json:"n_features"`
}

type Endpoints struct {
	Predict      string `json:"predict"`
	BatchPredict string `json:"batch_predict"`
	Health       string `json:"health"`
	Info         string `json:"info"`
}

type ListResponse struct {
	AvailableModels []string             `json:"available_models"`
	Endpoints       map[string]Endpoints `json:"endpoints"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// decodeJSON reads one JSON value from the body. The returned status is
// 413 for oversized bodies and 422 for anything else that fails to parse.
func decodeJSON(r *http.Request, dst any) (int, error) {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return http.StatusRequestEntityTooLarge, fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)
		case errors.Is(err, io.EOF):
			return http.StatusUnprocessableEntity, errors.New("request body is empty")
		default:
			return http.StatusUnprocessableEntity, fmt.Errorf("invalid JSON body: %w", err)
		}
	}
	if dec.More() {
		return http.StatusUnprocessableEntity, errors.New("invalid JSON body: trailing data")
	}
	return 0, nil
}

// writeJSON encodes before the header goes out so an unencodable payload
// still becomes a 500.
func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		buf.Reset()
		statusCode = http.StatusInternalServerError
		_ = json.NewEncoder(&buf).Encode(errorResponse{Detail: "Response encoding failed: " + err.Error()})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(buf.Bytes())
}

func writeDetail(w http.ResponseWriter, statusCode int, detail string) {
	writeJSON(w, statusCode, errorResponse{Detail: detail})
}
