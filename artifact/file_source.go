package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const (
	ModelSuffix    = "_model.json"
	MetadataSuffix = "_metadata.json"
)

// FileSource reads <dir>/<id>_model.json and <dir>/<id>_metadata.json.
type FileSource struct {
	dir string
}

func NewFileSource(dir string) *FileSource {
	return &FileSource{dir: dir}
}

func (s *FileSource) Dir() string {
	return s.dir
}

func (s *FileSource) Paths(id string) (model, metadata string) {
	return filepath.Join(s.dir, id+ModelSuffix), filepath.Join(s.dir, id+MetadataSuffix)
}

func (s *FileSource) Describe(id string) string {
	model, _ := s.Paths(id)
	return strings.TrimSuffix(model, ModelSuffix) + "_{model,metadata}.json"
}

func (s *FileSource) Fetch(ctx context.Context, id string) (Blobs, error) {
	if err := ctx.Err(); err != nil {
		return Blobs{}, err
	}
	modelPath, metadataPath := s.Paths(id)
	model, err := readFile(modelPath)
	if err != nil {
		return Blobs{}, err
	}
	metadata, err := readFile(metadataPath)
	if err != nil {
		return Blobs{}, err
	}
	return Blobs{Model: model, Metadata: metadata}, nil
}

// Put writes both blobs through a temporary file and rename so a watcher
// never observes a partially written artifact.
func (s *FileSource) Put(ctx context.Context, id string, blobs Blobs) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	modelPath, metadataPath := s.Paths(id)
	if err := writeFile(metadataPath, blobs.Metadata); err != nil {
		return err
	}
	return writeFile(modelPath, blobs.Model)
}

// IdentifierFromFile maps an artifact file name back to its model
// identifier.
func IdentifierFromFile(name string) (string, bool) {
	base := filepath.Base(name)
	for _, suffix := range []string{ModelSuffix, MetadataSuffix} {
		if id, ok := strings.CutSuffix(base, suffix); ok && id != "" {
			return id, true
		}
	}
	return "", false
}

func readFile(path string) ([]byte, error) {
	payload, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return payload, err
}

func writeFile(path string, payload []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".artifact-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
