package objectstore

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/afero"
)

// FileObjectRepository reads referenced objects from a filesystem. Keys are
// absolute paths.
type FileObjectRepository struct {
	fs afero.Fs
}

func NewFileObjectRepository(fsys afero.Fs) *FileObjectRepository {
	return &FileObjectRepository{fs: fsys}
}

func (r *FileObjectRepository) Download(_ context.Context, key string) (io.ReadCloser, error) {
	f, err := r.fs.Open(key)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", key, err)
	}
	return f, nil
}

func (r *FileObjectRepository) Size(_ context.Context, key string) (int64, error) {
	fi, err := r.fs.Stat(key)
	if err != nil {
		return 0, fmt.Errorf("failed to stat %s: %w", key, err)
	}
	if fi.IsDir() {
		return 0, fmt.Errorf("%s is a directory", key)
	}
	return fi.Size(), nil
}

func (r *FileObjectRepository) GetBucketName() string  { return "" }
func (r *FileObjectRepository) GetStorageType() string { return string(FileType) }
