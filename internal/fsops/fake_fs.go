package fsops

import (
	"os"

	"github.com/spf13/afero"
)

// FakeFS wraps an afero.Fs for testing
// Records Rename and RemoveAll calls and returns injected errors instead of
// performing them. Calls without an injected error go to the wrapped Fs.
type FakeFS struct {
	afero.Fs
	RenameErr    error
	RemoveAllErr error
	Calls        []string
}

// NewFakeFS wraps base, the real filesystem when base is nil
func NewFakeFS(base afero.Fs) *FakeFS {
	if base == nil {
		base = afero.NewOsFs()
	}
	return &FakeFS{Fs: base}
}

func (f *FakeFS) Rename(oldname, newname string) error {
	f.Calls = append(f.Calls, "mv:"+oldname+"->"+newname)
	if f.RenameErr != nil {
		return &os.LinkError{Op: "rename", Old: oldname, New: newname, Err: f.RenameErr}
	}
	return f.Fs.Rename(oldname, newname)
}

func (f *FakeFS) RemoveAll(path string) error {
	f.Calls = append(f.Calls, "rmall:"+path)
	if f.RemoveAllErr != nil {
		return &os.PathError{Op: "unlinkat", Path: path, Err: f.RemoveAllErr}
	}
	return f.Fs.RemoveAll(path)
}
