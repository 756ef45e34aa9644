package checklist

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// FileName is the checklist file name searched for under a base directory.
const FileName = "AGENTS.md"

// Discover returns every FileName under basePath, recursively and following
// symlinks, as paths joined onto basePath.
func Discover(basePath string) ([]string, error) {
	info, err := os.Stat(basePath)
	if err != nil {
		return nil, fmt.Errorf("stat checklist directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("checklist path %s is not a directory", basePath)
	}

	matches, err := doublestar.Glob(os.DirFS(basePath), "**/"+FileName,
		doublestar.WithFilesOnly(),
		doublestar.WithFailOnIOErrors(),
	)
	if err != nil {
		return nil, fmt.Errorf("discover checklists under %s: %w", basePath, err)
	}

	files := make([]string, 0, len(matches))
	for _, m := range matches {
		files = append(files, filepath.Join(basePath, filepath.FromSlash(m)))
	}
	return files, nil
}
