package disk

import (
	"os"

	"github.com/spf13/afero"
)

// TreeStats summarizes the contents of a directory tree
type TreeStats struct {
	Bytes int64 // Total bytes of regular files
	Files int64 // Number of regular files
	Dirs  int64 // Number of directories, root included
}

// MeasureTree walks root without following symlinks and totals regular
// file sizes. Entries that cannot be read are skipped; only a failure on
// root itself is returned.
func MeasureTree(fsys afero.Fs, root string) (*TreeStats, error) {
	stats := &TreeStats{}

	err := afero.Walk(fsys, root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if p == root && info == nil {
				return err
			}
			return nil // Skip errors
		}

		switch {
		case info.IsDir():
			stats.Dirs++
		case info.Mode().IsRegular():
			stats.Bytes += info.Size()
			stats.Files++
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return stats, nil
}
