package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"JewelForecast/internal/domain/models"
	"JewelForecast/internal/domain/repository"
)

const artifactExt = ".json"

// FileArtifactStore writes artifacts to <dir>/<model>/<version>.json.
// Versions must sort lexically in training order.
type FileArtifactStore struct {
	dir string
}

var _ repository.ArtifactStore = (*FileArtifactStore)(nil)

func NewFileArtifactStore(dir string) *FileArtifactStore {
	return &FileArtifactStore{dir: dir}
}

// Save writes to a temp file and renames it, so readers never see a partial artifact.
func (s *FileArtifactStore) Save(_ context.Context, model models.ModelType, version string, data []byte) error {
	if version == "" || filepath.Base(version) != version || strings.HasPrefix(version, ".") {
		return fmt.Errorf("%w: invalid artifact version %q", models.ErrPersistence, version)
	}
	dir := filepath.Join(s.dir, string(model))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write artifact: %v", models.ErrPersistence, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: sync artifact: %v", models.ErrPersistence, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, version+artifactExt)); err != nil {
		return fmt.Errorf("%w: rename artifact: %v", models.ErrPersistence, err)
	}
	return nil
}

func (s *FileArtifactStore) Delete(_ context.Context, model models.ModelType, version string) error {
	if version == "" || filepath.Base(version) != version || strings.HasPrefix(version, ".") {
		return fmt.Errorf("%w: invalid artifact version %q", models.ErrPersistence, version)
	}
	err := os.Remove(filepath.Join(s.dir, string(model), version+artifactExt))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: remove artifact: %v", models.ErrPersistence, err)
	}
	return nil
}

func (s *FileArtifactStore) Latest(ctx context.Context, model models.ModelType) (string, []byte, error) {
	versions, err := s.List(ctx, model)
	if err != nil {
		return "", nil, err
	}
	if len(versions) == 0 {
		return "", nil, repository.ErrArtifactNotFound
	}
	v := versions[len(versions)-1]
	data, err := os.ReadFile(filepath.Join(s.dir, string(model), v+artifactExt))
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	return v, data, nil
}

// List returns stored versions oldest first.
func (s *FileArtifactStore) List(_ context.Context, model models.ModelType) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, string(model)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, artifactExt) {
			continue
		}
		out = append(out, strings.TrimSuffix(name, artifactExt))
	}
	sort.Strings(out)
	return out, nil
}
