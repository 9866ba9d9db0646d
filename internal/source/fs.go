package source

import (
	"errors"
	"io/fs"

	"github.com/spf13/afero"
)

// FS is the read-only filesystem surface the resolver and loader use.
type FS interface {
	ReadFile(path string) ([]byte, error)
	Exists(path string) bool
	IsDir(path string) bool
}

// AferoFS adapts an afero filesystem; the host filesystem in production and
// afero.MemMapFs in tests.
type AferoFS struct {
	Fs afero.Fs
}

// NewFS wraps fsys. A nil fsys means the host filesystem.
func NewFS(fsys afero.Fs) AferoFS {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return AferoFS{Fs: fsys}
}

func (a AferoFS) ReadFile(path string) ([]byte, error) {
	return afero.ReadFile(a.Fs, path)
}

func (a AferoFS) Exists(path string) bool {
	ok, err := afero.Exists(a.Fs, path)
	return err == nil && ok
}

func (a AferoFS) IsDir(path string) bool {
	ok, err := afero.IsDir(a.Fs, path)
	return err == nil && ok
}

// IsNotExist reports whether err means the file is missing.
func IsNotExist(err error) bool { return errors.Is(err, fs.ErrNotExist) }
