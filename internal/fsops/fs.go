package fsops

import (
	"github.com/spf13/afero"
)

// NewOSFS returns the real filesystem used outside of tests
func NewOSFS() afero.Fs {
	return afero.NewOsFs()
}

// Exists reports whether path can be stat'ed. Any stat error, not only
// "not exist", counts as missing.
func Exists(fsys afero.Fs, path string) bool {
	ok, err := afero.Exists(fsys, path)
	return err == nil && ok
}
