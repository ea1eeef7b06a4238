package document

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/teranos/DMS/am"
	"github.com/teranos/DMS/errors"
)

// FileStorage keeps uploaded files under one directory
type FileStorage struct {
	dir      string
	maxBytes int64
}

// NewFileStorage stores files in dir, rejecting uploads larger than maxBytes (0 = unlimited)
func NewFileStorage(dir string, maxBytes int64) *FileStorage {
	return &FileStorage{dir: dir, maxBytes: maxBytes}
}

// Dir returns the upload directory
func (fs *FileStorage) Dir() string {
	return fs.dir
}

// Save writes content to a new file named after filename and returns its path.
// A uuid prefix keeps two uploads with the same name from overwriting each other.
func (fs *FileStorage) Save(filename string, content io.Reader) (string, error) {
	if err := os.MkdirAll(fs.dir, am.DefaultDirPermissions); err != nil {
		return "", errors.Wrap(err, "failed to create upload directory")
	}

	name := uuid.NewString() + "_" + sanitizeFilename(filename)
	path := filepath.Join(fs.dir, name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, am.DefaultFilePermissions)
	if err != nil {
		return "", errors.Wrap(err, "failed to create upload file")
	}

	src := content
	if fs.maxBytes > 0 {
		src = io.LimitReader(content, fs.maxBytes+1)
	}
	n, err := io.Copy(f, src)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err == nil && fs.maxBytes > 0 && n > fs.maxBytes {
		err = errors.NewInvalidRequestError("file exceeds the %d byte upload limit", fs.maxBytes)
	}
	if err != nil {
		os.Remove(path)
		if errors.IsInvalidRequestError(err) {
			return "", err
		}
		return "", errors.Wrap(err, "failed to write upload file")
	}

	return path, nil
}

// Open opens a stored file for reading
func (fs *FileStorage) Open(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	return f, nil
}

// Remove deletes a stored file. A missing file is not an error.
func (fs *FileStorage) Remove(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to remove %s", path)
	}
	return nil
}

// sanitizeFilename keeps only the base name and replaces characters unsafe in paths
func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == 0 || r < 0x20:
			return '_'
		default:
			return r
		}
	}, name)
	if name == "" || name == "." || name == ".." {
		return "upload"
	}
	return name
}
