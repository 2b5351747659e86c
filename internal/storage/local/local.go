// Package local stores archived audit batches on the local filesystem. It suits
// single-node deployments and development; a shared volume is needed for more
// than one replica. Each object gets a sibling ".sha256" file holding its digest.
package local

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/stagehand/adminauth/internal/config"
	"github.com/stagehand/adminauth/internal/storage"
	"github.com/stagehand/adminauth/pkg/checksum"
)

const checksumSuffix = "." + storage.MetadataChecksumKey

func init() {
	storage.Register("local", func(cfg *config.AuditArchiveConfig) (storage.Storage, error) {
		return New(&cfg.Local)
	})
}

// LocalStorage implements storage.Storage on a directory tree
type LocalStorage struct {
	basePath string
}

// New creates the base directory if needed
func New(cfg *config.LocalArchiveConfig) (*LocalStorage, error) {
	if cfg.BasePath == "" {
		return nil, fmt.Errorf("local archive base_path is required")
	}
	if err := os.MkdirAll(cfg.BasePath, 0750); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	return &LocalStorage{basePath: filepath.Clean(cfg.BasePath)}, nil
}

// resolve maps an object path under the base directory, rejecting traversal.
func (s *LocalStorage) resolve(path string) (string, error) {
	full := filepath.Join(s.basePath, filepath.FromSlash(path))
	if full != s.basePath && !strings.HasPrefix(full, s.basePath+string(os.PathSeparator)) {
		return "", fmt.Errorf("invalid object path: %s", path)
	}
	return full, nil
}

// Upload writes the object through a temp file and renames it into place
func (s *LocalStorage) Upload(ctx context.Context, path string, reader io.Reader) (*storage.UploadResult, error) {
	fullPath, err := s.resolve(path)
	if err != nil {
		return nil, err
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sum := checksum.SHA256Bytes(data)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0750); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(fullPath), ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
		tmp.Close()
		_ = os.Remove(tmpName)
		return nil, fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return nil, fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(tmpName, fullPath); err != nil {
		_ = os.Remove(tmpName)
		return nil, fmt.Errorf("failed to move file into place: %w", err)
	}
	if err := os.WriteFile(fullPath+checksumSuffix, []byte(sum+"\n"), 0640); err != nil {
		return nil, fmt.Errorf("failed to write checksum: %w", err)
	}

	return &storage.UploadResult{
		Path:     path,
		Size:     int64(len(data)),
		Checksum: sum,
	}, nil
}

// Exists checks if an object exists at the specified path
func (s *LocalStorage) Exists(ctx context.Context, path string) (bool, error) {
	fullPath, err := s.resolve(path)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(fullPath); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check file existence: %w", err)
	}
	return true, nil
}

// Delete removes the object, its checksum file, and any parent directories left empty
func (s *LocalStorage) Delete(ctx context.Context, path string) error {
	fullPath, err := s.resolve(path)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	_ = os.Remove(fullPath + checksumSuffix)

	// best effort
	dir := filepath.Dir(fullPath)
	for dir != s.basePath && strings.HasPrefix(dir, s.basePath) {
		if err := os.Remove(dir); err != nil {
			break
		}
		dir = filepath.Dir(dir)
	}
	return nil
}

// Verify recomputes the digest of a stored object and compares it with the
// recorded one.
func (s *LocalStorage) Verify(ctx context.Context, path string) (bool, error) {
	fullPath, err := s.resolve(path)
	if err != nil {
		return false, err
	}
	recorded, err := os.ReadFile(fullPath + checksumSuffix)
	if err != nil {
		return false, fmt.Errorf("failed to read checksum: %w", err)
	}
	f, err := os.Open(fullPath)
	if err != nil {
		return false, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()
	return checksum.VerifySHA256(f, strings.TrimSpace(string(recorded)))
}
