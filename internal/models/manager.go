package models

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultModelDir is the conventional model directory, next to where ears runs
const DefaultModelDir = "model"

// ErrNotFound is returned when the model directory does not exist
var ErrNotFound = errors.New("model directory not found")

// ErrIncomplete is returned when the directory exists but holds no acoustic model
var ErrIncomplete = errors.New("model directory has no acoustic model")

// acousticModelFiles lists where Vosk model packages keep final.mdl.
// Older packages put it at the top level, current ones under am/.
var acousticModelFiles = []string{
	filepath.Join("am", "final.mdl"),
	"final.mdl",
}

// Resolve returns the absolute model directory for path.
// An empty path means DefaultModelDir relative to the working directory.
func Resolve(path string) (string, error) {
	if path == "" {
		path = DefaultModelDir
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	return filepath.Join(cwd, path), nil
}

// Validate checks that path looks like an unpacked Vosk model
func Validate(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrNotFound, path)
	}

	for _, name := range acousticModelFiles {
		if _, err := os.Stat(filepath.Join(path, name)); err == nil {
			return nil
		}
	}

	return fmt.Errorf("%w: %s", ErrIncomplete, path)
}
