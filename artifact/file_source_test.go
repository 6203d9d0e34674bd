package artifact

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSourcePutFetch(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "saved_models")
	src := NewFileSource(dir)
	assert.Equal(t, dir, src.Dir())

	require.NoError(t, src.Put(ctx, "iris", Blobs{Model: []byte(`{"m":1}`), Metadata: []byte(`{"n":4}`)}))

	model, metadata := src.Paths("iris")
	assert.FileExists(t, model)
	assert.FileExists(t, metadata)
	assert.Equal(t, filepath.Join(dir, "iris_model.json"), model)

	blobs, err := src.Fetch(ctx, "iris")
	require.NoError(t, err)
	assert.Equal(t, `{"m":1}`, string(blobs.Model))
	assert.Equal(t, `{"n":4}`, string(blobs.Metadata))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "temporary files must not be left behind")
}

func TestFileSourceMissing(t *testing.T) {
	src := NewFileSource(t.TempDir())
	_, err := src.Fetch(context.Background(), "diabetes")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))

	modelPath, _ := src.Paths("diabetes")
	require.NoError(t, os.WriteFile(modelPath, []byte("{}"), 0o600))
	_, err = src.Fetch(context.Background(), "diabetes")
	assert.ErrorIs(t, err, ErrNotFound, "metadata blob is still missing")
}

func TestIdentifierFromFile(t *testing.T) {
	tests := []struct {
		name string
		id   string
		ok   bool
	}{
		{name: "/data/iris_model.json", id: "iris", ok: true},
		{name: "diabetes_metadata.json", id: "diabetes", ok: true},
		{name: "_model.json"},
		{name: ".artifact-1234"},
		{name: "iris_model.pkl"},
	}
	for _, tt := range tests {
		id, ok := IdentifierFromFile(tt.name)
		assert.Equal(t, tt.ok, ok, tt.name)
		assert.Equal(t, tt.id, id, tt.name)
	}
}

func TestMemorySource(t *testing.T) {
	ctx := context.Background()
	src := NewMemorySource()
	_, err := src.Fetch(ctx, "iris")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, src.Put(ctx, "iris", Blobs{Model: []byte("a"), Metadata: []byte("b")}))
	blobs, err := src.Fetch(ctx, "iris")
	require.NoError(t, err)
	assert.Equal(t, "a", string(blobs.Model))

	src.Delete("iris")
	_, err = src.Fetch(ctx, "iris")
	assert.ErrorIs(t, err, ErrNotFound)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = src.Fetch(canceled, "iris")
	assert.ErrorIs(t, err, context.Canceled)
}
