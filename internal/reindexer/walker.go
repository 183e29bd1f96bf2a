package reindexer

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// DefaultIgnorePatterns are common build, output, and dependency
// directories to skip.
var DefaultIgnorePatterns = []string{
	".git",
	"node_modules",
	"dist",
	"build",
	"vendor",
	"__pycache__",
	"coverage",
	".next",
	".cache",
	"target",
	"bin",
	"obj",
	".idea",
	".vscode",
	".DS_Store",
}

// allowedExtensions is the fixed allow-list of indexable file types
var allowedExtensions = map[string]bool{
	".go":   true,
	".ts":   true,
	".tsx":  true,
	".js":   true,
	".jsx":  true,
	".py":   true,
	".rs":   true,
	".java": true,
	".c":    true,
	".h":    true,
	".cpp":  true,
	".cc":   true,
	".hpp":  true,
	".md":   true,
	".json": true,
	".yaml": true,
	".yml":  true,
}

// Walker enumerates indexable files under a root, honoring the ignore
// allow-list and any .gitignore files in the tree
type Walker struct {
	root          string
	ignoreMatcher gitignore.IgnoreParser
}

// NewWalker creates a walker for root, compiling the default ignore
// patterns together with the root's .gitignore files
func NewWalker(root string) (*Walker, error) {
	if _, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("root path not accessible: %w", err)
	}

	patterns := make([]string, 0, len(DefaultIgnorePatterns)+16)
	patterns = append(patterns, DefaultIgnorePatterns...)
	patterns = append(patterns, loadGitignorePatterns(root)...)

	return &Walker{
		root:          root,
		ignoreMatcher: gitignore.CompileIgnoreLines(patterns...),
	}, nil
}

// Walk returns the paths of all indexable files under the root. Per-path
// failures are returned as messages alongside the successful paths.
func (w *Walker) Walk() ([]string, []string) {
	var files []string
	var errs []string

	filepath.WalkDir(w.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", path, err))
			return nil
		}

		relPath, err := filepath.Rel(w.root, path)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", path, err))
			return nil
		}
		if relPath == "." {
			return nil
		}

		if w.ignoreMatcher.MatchesPath(relPath) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			return nil
		}
		if d.Type()&os.ModeSymlink != 0 {
			return nil
		}

		if allowedExtensions[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})

	return files, errs
}

// loadGitignorePatterns reads patterns from every .gitignore under root
func loadGitignorePatterns(root string) []string {
	var patterns []string

	filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || d.Name() != ".gitignore" {
			return nil
		}
		if lines, err := readGitignoreLines(path); err == nil {
			patterns = append(patterns, lines...)
		}
		return nil
	})

	return patterns
}

func readGitignoreLines(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}
