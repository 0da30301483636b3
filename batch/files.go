package batch

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/c360studio/semgrade/submission"
)

// ErrNoFiles is returned when no pattern matched a submission file.
var ErrNoFiles = errors.New("no submission files found")

// ResolveFiles expands file names, directories and glob patterns to the
// submission files they name. Directories contribute their supported files
// one level deep; patterns may use ** for recursive matches.
//
// Examples:
//   - "essays/" → every .txt, .md and .html file in essays
//   - "essays/**/*.md" → markdown files at any depth under essays
//   - "week3/alice.txt" → that file
//
// Results are absolute, de-duplicated and sorted.
func ResolveFiles(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var resolved []string

	for _, pattern := range patterns {
		paths, err := resolvePattern(pattern)
		if err != nil {
			return nil, fmt.Errorf("resolve pattern %q: %w", pattern, err)
		}
		for _, p := range paths {
			if !seen[p] {
				seen[p] = true
				resolved = append(resolved, p)
			}
		}
	}

	if len(resolved) == 0 {
		return nil, ErrNoFiles
	}
	sort.Strings(resolved)
	return resolved, nil
}

func resolvePattern(pattern string) ([]string, error) {
	if !containsGlob(pattern) {
		absPath, err := filepath.Abs(pattern)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(absPath)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			return []string{absPath}, nil
		}
		return supportedIn(absPath)
	}

	base, glob := doublestar.SplitPattern(filepath.ToSlash(pattern))
	absBase, err := filepath.Abs(filepath.FromSlash(base))
	if err != nil {
		return nil, err
	}

	matches, err := doublestar.Glob(os.DirFS(absBase), glob, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("glob error: %w", err)
	}

	var files []string
	for _, m := range matches {
		if submission.Supported(m) && !strings.HasPrefix(path.Base(m), ".") {
			files = append(files, filepath.Join(absBase, filepath.FromSlash(m)))
		}
	}
	return files, nil
}

// supportedIn lists the supported files directly inside dir.
func supportedIn(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if submission.Supported(e.Name()) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	return files, nil
}

func containsGlob(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}
