// Package fileutil provides file and path helpers shared by the stores.
package fileutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	defaultDirPermissions  = 0o750
	defaultFilePermissions = 0o600
	invalidCharReplacement = "_"
)

// Data size constants.
const (
	kilobyte = 1024
	megabyte = kilobyte * 1024
)

const (
	errFmtFailedToCreateDir = "failed to create directory %s: %w"
	errFmtTempFile          = "failed to create temp file in %s: %w"
	errFmtWriteTemp         = "failed to write temp file %s: %w"
	errFmtRename            = "failed to replace %s: %w"
)

// EnsureDir ensures a directory exists at the given path, creating it if it doesn't.
func EnsureDir(path string) error {
	mkdirErr := os.MkdirAll(path, defaultDirPermissions)
	if mkdirErr != nil {
		return fmt.Errorf(errFmtFailedToCreateDir, path, mkdirErr)
	}

	return nil
}

// WriteFileAtomic writes data to a temporary file next to path and renames it
// over path, so readers see either the old or the new content.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)

	dirErr := EnsureDir(dir)
	if dirErr != nil {
		return dirErr
	}

	temp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf(errFmtTempFile, dir, err)
	}

	tempName := temp.Name()

	_, writeErr := temp.Write(data)
	syncErr := temp.Sync()
	closeErr := temp.Close()

	if err = errors.Join(writeErr, syncErr, closeErr); err != nil {
		_ = os.Remove(tempName)

		return fmt.Errorf(errFmtWriteTemp, tempName, err)
	}

	chmodErr := os.Chmod(tempName, defaultFilePermissions)
	if chmodErr != nil {
		_ = os.Remove(tempName)

		return fmt.Errorf(errFmtWriteTemp, tempName, chmodErr)
	}

	renameErr := os.Rename(tempName, path)
	if renameErr != nil {
		_ = os.Remove(tempName)

		return fmt.Errorf(errFmtRename, path, renameErr)
	}

	return nil
}

// FormatFileSize formats a file size in a human-readable string (e.g. "1.2 MB").
func FormatFileSize(bytes int64) string {
	switch {
	case bytes >= megabyte:
		return fmt.Sprintf("%.1f MB", float64(bytes)/megabyte)
	case bytes >= kilobyte:
		return fmt.Sprintf("%.1f KB", float64(bytes)/kilobyte)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// SanitizeFilename replaces characters that are invalid in most filesystems.
func SanitizeFilename(filename string) string {
	replacer := strings.NewReplacer(
		"<", invalidCharReplacement,
		">", invalidCharReplacement,
		":", invalidCharReplacement,
		"\"", invalidCharReplacement,
		"/", invalidCharReplacement,
		"\\", invalidCharReplacement,
		"|", invalidCharReplacement,
		"?", invalidCharReplacement,
		"*", invalidCharReplacement,
	)

	return replacer.Replace(filename)
}
