// Package security confines user supplied paths to a trusted directory.
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrPathEscape indicates the resolved path would leave the base directory.
	ErrPathEscape = errors.New("path escapes base directory")
	// ErrNotAFile rejects names that can only resolve to a directory.
	ErrNotAFile = errors.New("path does not name a file")
)

// ResolveWithin joins elems under base and returns the absolute result,
// failing with ErrPathEscape if it lands outside base.
func ResolveWithin(base string, elems ...string) (string, error) {
	if base == "" {
		return "", errors.New("base directory is required")
	}

	root, err := filepath.Abs(base)
	if err != nil {
		return "", fmt.Errorf("resolve base path: %w", err)
	}

	target := filepath.Join(append([]string{root}, elems...)...)
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return "", fmt.Errorf("relativize path: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %s", ErrPathEscape, target)
	}
	return target, nil
}

// ResolveFile resolves a file name under base. Absolute names are accepted
// when they already point inside base.
func ResolveFile(base, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: empty name", ErrNotAFile)
	}
	if filepath.IsAbs(name) {
		root, err := filepath.Abs(base)
		if err != nil {
			return "", fmt.Errorf("resolve base path: %w", err)
		}
		if name, err = filepath.Rel(root, name); err != nil {
			return "", fmt.Errorf("relativize path: %w", err)
		}
	}
	switch clean := filepath.Clean(name); clean {
	case ".", "..":
		return "", fmt.Errorf("%w: %q", ErrNotAFile, name)
	}
	return ResolveWithin(base, name)
}
