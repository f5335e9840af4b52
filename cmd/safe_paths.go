package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/khanhnv2901/safe-audit/internal/security"
	"github.com/khanhnv2901/safe-audit/internal/shared/constants"
)

// resolveOutputPath confines a user supplied --file path to the working
// directory tree.
func resolveOutputPath(baseDir, name string) (string, error) {
	return security.ResolveFile(baseDir, name)
}

// writeOutputFile writes data under baseDir, creating parent directories.
func writeOutputFile(baseDir, name string, data []byte) (string, error) {
	path, err := resolveOutputPath(baseDir, name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), constants.DefaultDirPerm); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	if err := os.WriteFile(path, data, constants.DefaultFilePerm); err != nil {
		return "", fmt.Errorf("write output file: %w", err)
	}
	return path, nil
}
