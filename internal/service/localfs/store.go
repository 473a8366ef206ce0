package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"datasethub/internal/service/blob"
)

const stagingDir = ".staging"

// Store хранит содержимое версий в файловой системе.
// Запись идет во временный файл и затем переименовывается,
// поэтому читатели никогда не видят частично записанный объект.
type Store struct {
	fs afero.Fs
}

var _ blob.Storage = (*Store)(nil)

func NewStore(fs afero.Fs) *Store {
	return &Store{fs: fs}
}

// NewOSStore создает хранилище в каталоге dir на диске
func NewOSStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return NewStore(afero.NewBasePathFs(afero.NewOsFs(), dir)), nil
}

func (s *Store) Put(ctx context.Context, key string, r io.Reader) (int64, error) {
	name, err := objectPath(key)
	if err != nil {
		return 0, err
	}

	if err := s.fs.MkdirAll(stagingDir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create staging directory: %w", err)
	}

	tmp, err := afero.TempFile(s.fs, stagingDir, "upload-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	size, err := io.Copy(tmp, &contextReader{ctx: ctx, r: r})
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		s.fs.Remove(tmpName)
		return 0, fmt.Errorf("failed to write object %s: %w", key, err)
	}

	if err := s.fs.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		s.fs.Remove(tmpName)
		return 0, fmt.Errorf("failed to create object directory: %w", err)
	}

	if err := s.fs.Rename(tmpName, name); err != nil {
		s.fs.Remove(tmpName)
		return 0, fmt.Errorf("failed to commit object %s: %w", key, err)
	}

	return size, nil
}

func (s *Store) Get(_ context.Context, key string) (blob.Object, error) {
	name, err := objectPath(key)
	if err != nil {
		return nil, err
	}

	f, err := s.fs.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", blob.ErrObjectNotFound, key)
		}
		return nil, fmt.Errorf("failed to open object %s: %w", key, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat object %s: %w", key, err)
	}

	return blob.NewObject(f, info.Size()), nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	name, err := objectPath(key)
	if err != nil {
		return err
	}

	if err := s.fs.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]blob.ObjectInfo, error) {
	root := strings.TrimSuffix(prefix, "/")
	if i := strings.LastIndex(root, "/"); i >= 0 && !strings.HasSuffix(prefix, "/") {
		root = root[:i]
	}
	if root == "" {
		root = "."
	}

	var objects []blob.ObjectInfo
	err := afero.Walk(s.fs, filepath.FromSlash(root), func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if info.IsDir() {
			if info.Name() == stagingDir {
				return filepath.SkipDir
			}
			return nil
		}

		key := strings.TrimPrefix(filepath.ToSlash(p), "./")
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		objects = append(objects, blob.ObjectInfo{
			Key:          key,
			Size:         info.Size(),
			LastModified: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}

	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

func objectPath(key string) (string, error) {
	if key == "" || path.Clean(key) != key || strings.HasPrefix(key, "../") || path.IsAbs(key) ||
		strings.HasPrefix(key, stagingDir) {
		return "", fmt.Errorf("invalid object key: %q", key)
	}
	return filepath.FromSlash(key), nil
}

// contextReader прерывает копирование при отмене контекста
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
