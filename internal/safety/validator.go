package safety

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrInvalidPath   = errors.New("invalid path")
	ErrProtectedPath = errors.New("protected path")
	ErrTraversal     = errors.New("path traversal detected")
	ErrNotSibling    = errors.New("trash path is not a sibling of the target")
)

// Validator guards the rename and delete of a cleanup run
type Validator struct {
	ProtectedPaths []string
}

// NewValidator creates a validator with the default protected paths plus extras
func NewValidator(extraProtected []string) *Validator {
	return &Validator{
		ProtectedPaths: defaultProtected(extraProtected),
	}
}

// ValidatePair authorizes renaming target onto trash and deleting trash.
// The returned error names the offending path and wraps one of the Err* values.
func (v *Validator) ValidatePair(target, trash string) error {
	t, err := v.ValidatePath(target)
	if err != nil {
		return fmt.Errorf("%s: %w", target, err)
	}
	tr, err := v.ValidatePath(trash)
	if err != nil {
		return fmt.Errorf("%s: %w", trash, err)
	}
	if t == tr || filepath.Dir(t) != filepath.Dir(tr) {
		return fmt.Errorf("%s: %w", trash, ErrNotSibling)
	}
	return nil
}

// ValidatePath returns the normalized form of path or the violation it hits
func (v *Validator) ValidatePath(path string) (string, error) {
	if DetectTraversal(path) {
		return "", ErrTraversal
	}
	p, err := NormalizePath(path)
	if err != nil {
		return "", err
	}
	if IsProtectedPath(p, v.ProtectedPaths) {
		return "", ErrProtectedPath
	}
	return p, nil
}

// NormalizePath converts path to absolute, cleaned form
func NormalizePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", ErrInvalidPath
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", ErrInvalidPath
	}
	return filepath.Clean(abs), nil
}

// DetectTraversal blocks any ".." segment in raw input
func DetectTraversal(raw string) bool {
	for _, p := range strings.Split(filepath.ToSlash(raw), "/") {
		if p == ".." {
			return true
		}
	}
	return false
}

// IsProtectedPath checks if path is, or lives under, a protected path
func IsProtectedPath(path string, protected []string) bool {
	p := filepath.Clean(path)

	// Hard block: "/" exact
	if p == string(os.PathSeparator) {
		return true
	}

	for _, prot := range protected {
		if hasPathPrefix(p, prot) {
			return true
		}
	}
	return false
}

// hasPathPrefix checks if path equals prefix or lives under it.
// A "/" prefix only matches "/" itself so it never blocks the whole tree.
func hasPathPrefix(path, prefix string) bool {
	path = filepath.Clean(path)
	prefix = filepath.Clean(prefix)

	if prefix == string(os.PathSeparator) {
		return path == prefix
	}
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix+string(os.PathSeparator))
}

func defaultProtected(extra []string) []string {
	base := []string{
		"/",
		"/etc",
		"/bin",
		"/usr",
		"/boot",
		"/lib",
		"/lib64",
		"/sbin",
		"/proc",
		"/sys",
		"/dev",
	}
	return append(base, extra...)
}
