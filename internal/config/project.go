package config

import (
	"os"
	"path/filepath"
)

// DirName is the per-project state directory.
const DirName = ".huntdedup"

// FindProjectRoot looks for the .huntdedup directory starting from the
// current working directory and moving up the directory tree
func FindProjectRoot() (string, error) {
	currentDir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return findProjectRootFrom(currentDir), nil
}

func findProjectRootFrom(start string) string {
	dir := start
	for {
		if info, err := os.Stat(filepath.Join(dir, DirName)); err == nil && info.IsDir() {
			return dir
		}

		parentDir := filepath.Dir(dir)
		if parentDir == dir {
			break
		}
		dir = parentDir
	}

	// If no .huntdedup directory found, use the starting directory
	return start
}

// GetHuntDedupDir returns the path to the .huntdedup directory relative to the project root
func GetHuntDedupDir(projectRoot string) string {
	return filepath.Join(projectRoot, DirName)
}

// EnsureHuntDedupDirs creates the necessary .huntdedup subdirectories
func EnsureHuntDedupDirs(huntDedupDir string) error {
	for _, subdir := range []string{
		huntDedupDir,
		filepath.Join(huntDedupDir, "logs"),
	} {
		if err := os.MkdirAll(subdir, 0755); err != nil {
			return err
		}
	}
	return nil
}
