package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iclim/ml-app/artifact"
	"github.com/iclim/ml-app/db"
	"github.com/iclim/ml-app/ml"
	"github.com/iclim/ml-app/registry"
)

func writeCSV(t *testing.T, rows []string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(rows, "\n")+"\n"), 0o644))
	return path
}

func TestTrainClassifier(t *testing.T) {
	rows := []string{"width,height,label"}
	for i := 0; i < 20; i++ {
		rows = append(rows, fmt.Sprintf("%d.5,1.0,small", i%5))
		rows = append(rows, fmt.Sprintf("%d.5,9.0,large", 10+i%5))
	}
	out := t.TempDir()
	sqlitePath := filepath.Join(t.TempDir(), "models.db")

	var stdout bytes.Buffer
	err := run(context.Background(), options{
		data:       writeCSV(t, rows),
		target:     "label",
		name:       "shapes",
		out:        out,
		sqlitePath: sqlitePath,
		estimators: 5,
		maxDepth:   4,
		testRatio:  0.2,
		seed:       42,
	}, &stdout, zap.NewNop())
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "Model Performance:")
	assert.Contains(t, stdout.String(), "accuracy")

	reg := registry.New(artifact.NewFileSource(out))
	require.NoError(t, reg.Register("shapes"))
	status, err := reg.Reload(context.Background(), "shapes")
	require.NoError(t, err)
	require.True(t, status.Loaded, status.Error)

	unit, err := reg.Lookup("shapes")
	require.NoError(t, err)
	pred, err := unit.Predict([]float64{12.5, 9.0})
	require.NoError(t, err)
	assert.Equal(t, "large", pred.Classification.Label)
	assert.Equal(t, "RandomForestClassifier", unit.Info().ModelType)

	store, err := db.Open(sqlitePath)
	require.NoError(t, err)
	defer store.Close()
	ids, err := store.Identifiers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"shapes"}, ids)
}

func TestTrainRegressor(t *testing.T) {
	rows := []string{"x1,x2,y"}
	for i := 0; i < 30; i++ {
		x1 := float64(i) / 10
		x2 := float64(i%7) / 7
		rows = append(rows, fmt.Sprintf("%g,%g,%g", x1, x2, 3*x1-2*x2+5))
	}
	out := t.TempDir()

	var stdout bytes.Buffer
	err := run(context.Background(), options{
		data:      writeCSV(t, rows),
		name:      "linear",
		out:       out,
		alpha:     0.001,
		testRatio: 0.2,
		seed:      1,
	}, &stdout, zap.NewNop())
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "R² Score")

	blobs, err := artifact.NewFileSource(out).Fetch(context.Background(), "linear")
	require.NoError(t, err)
	meta, err := ml.DecodeMetadata(blobs.Metadata)
	require.NoError(t, err)
	assert.Equal(t, "regression", meta.ModelType)
	assert.Equal(t, "y", meta.Target)
	assert.Equal(t, 2, meta.NFeatures)
}

func TestRunValidation(t *testing.T) {
	err := run(context.Background(), options{}, &bytes.Buffer{}, zap.NewNop())
	assert.ErrorContains(t, err, "required")

	path := writeCSV(t, []string{"a,label", "1,x", "2,y"})
	err = run(context.Background(), options{data: path, name: "m", kind: "regression", out: t.TempDir()}, &bytes.Buffer{}, zap.NewNop())
	assert.ErrorContains(t, err, "categorical")
}

func TestNumericClasses(t *testing.T) {
	rows := []string{"a,label", "1,0", "2,2", "3,1"}
	out := t.TempDir()
	err := run(context.Background(), options{
		data: writeCSV(t, rows), name: "m", kind: "classification", out: out,
		estimators: 2, testRatio: 0.3, seed: 3,
	}, &bytes.Buffer{}, zap.NewNop())
	require.NoError(t, err)

	blobs, err := artifact.NewFileSource(out).Fetch(context.Background(), "m")
	require.NoError(t, err)
	meta, err := ml.DecodeMetadata(blobs.Metadata)
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "1", "2"}, meta.TargetNames)
}
