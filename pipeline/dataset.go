// Package pipeline prepares tabular training data for the offline trainer.
package pipeline

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"strconv"
	"strings"
)

// Dataset is a dense feature matrix with one target column. Classes is set
// when the target is categorical; Y then holds class ids.
type Dataset struct {
	FeatureNames []string
	X            [][]float64
	Target       string
	Y            []float64
	Classes      []string
}

func (ds Dataset) Len() int {
	return len(ds.X)
}

func (ds Dataset) Categorical() bool {
	return ds.Classes != nil
}

// Labels returns Y as class ids.
func (ds Dataset) Labels() []int {
	labels := make([]int, len(ds.Y))
	for i, y := range ds.Y {
		labels[i] = int(y)
	}
	return labels
}

func (ds Dataset) subset(indexes []int) Dataset {
	out := Dataset{
		FeatureNames: ds.FeatureNames,
		Target:       ds.Target,
		Classes:      ds.Classes,
		X:            make([][]float64, len(indexes)),
		Y:            make([]float64, len(indexes)),
	}
	for i, idx := range indexes {
		out.X[i] = ds.X[idx]
		out.Y[i] = ds.Y[idx]
	}
	return out
}

// LoadCSV reads a CSV with a header row. target names the label column;
// empty means the last column. Empty feature cells load as NaN so Clean
// can drop them. A target column with any non-numeric value is treated as
// categorical and mapped to class ids in first-seen order.
func LoadCSV(r io.Reader, target string) (Dataset, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Dataset{}, errors.New("csv is empty")
		}
		return Dataset{}, fmt.Errorf("read header: %w", err)
	}
	if len(header) < 2 {
		return Dataset{}, fmt.Errorf("csv needs at least two columns, got %d", len(header))
	}

	targetIdx := len(header) - 1
	if target != "" {
		targetIdx = -1
		for i, name := range header {
			if strings.TrimSpace(name) == target {
				targetIdx = i
				break
			}
		}
		if targetIdx < 0 {
			return Dataset{}, fmt.Errorf("target column %q not found", target)
		}
	}

	ds := Dataset{Target: strings.TrimSpace(header[targetIdx])}
	for i, name := range header {
		if i != targetIdx {
			ds.FeatureNames = append(ds.FeatureNames, strings.TrimSpace(name))
		}
	}

	var targets []string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Dataset{}, fmt.Errorf("read row: %w", err)
		}
		line, _ := reader.FieldPos(0)

		row := make([]float64, 0, len(ds.FeatureNames))
		for i, cell := range record {
			if i == targetIdx {
				continue
			}
			value, err := parseCell(cell)
			if err != nil {
				return Dataset{}, fmt.Errorf("line %d column %q: %w", line, header[i], err)
			}
			row = append(row, value)
		}
		ds.X = append(ds.X, row)
		targets = append(targets, strings.TrimSpace(record[targetIdx]))
	}
	if len(ds.X) == 0 {
		return Dataset{}, errors.New("csv has no data rows")
	}

	ds.Y, ds.Classes = encodeTargets(targets)
	return ds, nil
}

func parseCell(cell string) (float64, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(cell, 64)
}

func encodeTargets(targets []string) ([]float64, []string) {
	values := make([]float64, len(targets))
	numeric := true
	for i, t := range targets {
		v, err := parseCell(t)
		if err != nil {
			numeric = false
			break
		}
		values[i] = v
	}
	if numeric {
		return values, nil
	}

	ids := make(map[string]int)
	classes := []string{}
	for i, t := range targets {
		id, ok := ids[t]
		if !ok {
			id = len(classes)
			ids[t] = id
			classes = append(classes, t)
		}
		values[i] = float64(id)
	}
	return values, classes
}

// Split shuffles ds with seed and holds out testRatio of the rows. Ratios
// outside (0, 1) fall back to 0.2.
func Split(ds Dataset, testRatio float64, seed int64) (train, test Dataset) {
	if testRatio <= 0 || testRatio >= 1 {
		testRatio = 0.2
	}
	indexes := rand.New(rand.NewSource(seed)).Perm(ds.Len())

	nTest := int(math.Ceil(float64(ds.Len()) * testRatio))
	if nTest >= ds.Len() {
		nTest = ds.Len() - 1
	}
	if nTest < 0 {
		nTest = 0
	}
	return ds.subset(indexes[nTest:]), ds.subset(indexes[:nTest])
}
