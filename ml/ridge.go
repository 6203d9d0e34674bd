package ml

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Ridge is an L2-penalized linear regression. The intercept is not
// penalized.
type Ridge struct {
	Alpha     float64   `json:"alpha"`
	Coef      []float64 `json:"coef"`
	Intercept float64   `json:"intercept"`
}

func (r *Ridge) Name() string     { return "Ridge" }
func (r *Ridge) NumFeatures() int { return len(r.Coef) }

// Fit solves (XcᵀXc + αI)w = Xcᵀyc on mean-centered data.
func (r *Ridge) Fit(features [][]float64, targets []float64) error {
	if len(features) == 0 || len(features) != len(targets) {
		return errors.New("features and targets must be non-empty and of equal size")
	}
	if r.Alpha < 0 {
		return errors.New("alpha must not be negative")
	}
	rows, cols := len(features), len(features[0])
	if cols == 0 {
		return errors.New("features must not be empty")
	}
	if err := checkSamples(features, cols); err != nil {
		return err
	}

	means := make([]float64, cols)
	for _, sample := range features {
		for j, v := range sample {
			means[j] += v
		}
	}
	for j := range means {
		means[j] /= float64(rows)
	}
	var targetMean float64
	for _, y := range targets {
		targetMean += y
	}
	targetMean /= float64(rows)

	x := mat.NewDense(rows, cols, nil)
	y := mat.NewVecDense(rows, nil)
	for i, sample := range features {
		for j, v := range sample {
			x.Set(i, j, v-means[j])
		}
		y.SetVec(i, targets[i]-targetMean)
	}

	var gram mat.Dense
	gram.Mul(x.T(), x)
	for j := 0; j < cols; j++ {
		gram.Set(j, j, gram.At(j, j)+r.Alpha)
	}
	var rhs mat.VecDense
	rhs.MulVec(x.T(), y)

	var w mat.VecDense
	if err := w.SolveVec(&gram, &rhs); err != nil {
		return fmt.Errorf("solve normal equations: %w", err)
	}

	r.Coef = make([]float64, cols)
	r.Intercept = targetMean
	for j := range r.Coef {
		r.Coef[j] = w.AtVec(j)
		r.Intercept -= means[j] * r.Coef[j]
	}
	return nil
}

// Predict evaluates the whole batch as one matrix-vector product.
func (r *Ridge) Predict(samples [][]float64) ([]float64, error) {
	if len(r.Coef) == 0 {
		return nil, errors.New("model not trained")
	}
	if err := checkSamples(samples, len(r.Coef)); err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return []float64{}, nil
	}
	cols := len(r.Coef)
	flat := make([]float64, 0, len(samples)*cols)
	for _, sample := range samples {
		flat = append(flat, sample...)
	}
	x := mat.NewDense(len(samples), cols, flat)
	var out mat.VecDense
	out.MulVec(x, mat.NewVecDense(cols, r.Coef))

	values := make([]float64, len(samples))
	for i := range values {
		values[i] = out.AtVec(i) + r.Intercept
	}
	return values, nil
}

func (r *Ridge) validate() error {
	if len(r.Coef) == 0 {
		return errors.New("ridge has no coefficients")
	}
	return nil
}
