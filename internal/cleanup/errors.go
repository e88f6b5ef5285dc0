package cleanup

import "fmt"

// RenameError reports that the target could not be moved onto the trash path
type RenameError struct {
	Target string
	Trash  string
	Err    error
}

func (e *RenameError) Error() string {
	return fmt.Sprintf("rename %s to %s: %v", e.Target, e.Trash, e.Err)
}

func (e *RenameError) Unwrap() error { return e.Err }

// DeleteError reports that the trash tree could not be removed completely.
// Part of the tree may already be gone.
type DeleteError struct {
	Path string
	Err  error
}

func (e *DeleteError) Error() string {
	return fmt.Sprintf("delete %s: %v", e.Path, e.Err)
}

func (e *DeleteError) Unwrap() error { return e.Err }
