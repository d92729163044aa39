// Package fsutil provides file system utility functions.
package fsutil

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// ignoreStack tracks .gitignore matchers for a walk, each scoped to the
// directory that declared it.
type ignoreStack struct {
	entries []ignoreEntry
}

type ignoreEntry struct {
	base    string
	matcher *gitignore.GitIgnore
}

func (s *ignoreStack) push(dir string) {
	matcher, err := gitignore.CompileIgnoreFile(filepath.Join(dir, ".gitignore"))
	if err != nil {
		// No .gitignore here, or an unreadable one; either way the walk
		// proceeds without extra rules for this subtree.
		return
	}
	s.entries = append(s.entries, ignoreEntry{base: dir, matcher: matcher})
}

func (s *ignoreStack) ignored(path string) bool {
	for _, e := range s.entries {
		rel, err := filepath.Rel(e.base, path)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		if e.matcher.MatchesPath(rel) {
			return true
		}
	}
	return false
}

// FindFilesNamed recursively searches root for files whose base name is one
// of the given names, honoring .gitignore rules encountered along the way
// and always skipping version-control directories. Results are ordered
// parents before children (fewer path components first), lexicographically
// within a depth, so shallow manifests claim their directories first.
func FindFilesNamed(root string, names ...string) ([]string, error) {
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}

	ignores := &ignoreStack{}
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" && path != root {
				return filepath.SkipDir
			}
			if path != root && ignores.ignored(path) {
				return filepath.SkipDir
			}
			ignores.push(path)
			return nil
		}
		if !wanted[d.Name()] || ignores.ignored(path) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool {
		di := strings.Count(files[i], string(os.PathSeparator))
		dj := strings.Count(files[j], string(os.PathSeparator))
		if di != dj {
			return di < dj
		}
		return files[i] < files[j]
	})
	return files, nil
}
