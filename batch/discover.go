package batch

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// FindRuleFiles resolves the include globs, removes anything matching an
// exclude glob, and returns the surviving paths sorted. The sorted order is
// the discovery order every report uses. Patterns support "**" for
// recursive descent in addition to the usual single-segment wildcards.
func FindRuleFiles(includes, excludes []string) ([]string, error) {
	seen := make(map[string]struct{})
	var files []string

	for _, pattern := range includes {
		matches, err := expandPattern(pattern)
		if err != nil {
			return nil, fmt.Errorf("include pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			if _, dup := seen[m]; dup {
				continue
			}
			excluded, err := matchesAny(excludes, m)
			if err != nil {
				return nil, err
			}
			if excluded {
				continue
			}
			seen[m] = struct{}{}
			files = append(files, m)
		}
	}

	sort.Strings(files)
	return files, nil
}

// expandPattern resolves one glob. Patterns without "**" go straight to
// filepath.Glob; recursive patterns walk from the static prefix.
func expandPattern(pattern string) ([]string, error) {
	pattern = filepath.ToSlash(pattern)
	if !strings.Contains(pattern, "**") {
		matches, err := filepath.Glob(filepath.FromSlash(pattern))
		if err != nil {
			return nil, err
		}
		var files []string
		for _, m := range matches {
			if isRegularFile(m) {
				files = append(files, filepath.ToSlash(m))
			}
		}
		return files, nil
	}

	root := staticPrefix(pattern)
	var files []string
	err := filepath.WalkDir(filepath.FromSlash(root), func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtrees are skipped, not fatal.
			return nil
		}
		if d.IsDir() {
			return nil
		}
		slashed := filepath.ToSlash(p)
		ok, matchErr := matchRecursive(pattern, slashed)
		if matchErr != nil {
			return matchErr
		}
		if ok {
			files = append(files, slashed)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// staticPrefix returns the directory part of a pattern before the first
// wildcard, the walk root for recursive patterns.
func staticPrefix(pattern string) string {
	segments := strings.Split(pattern, "/")
	var static []string
	for _, seg := range segments {
		if strings.ContainsAny(seg, "*?[") {
			break
		}
		static = append(static, seg)
	}
	if len(static) == 0 {
		return "."
	}
	return strings.Join(static, "/")
}

func matchesAny(patterns []string, file string) (bool, error) {
	for _, pattern := range patterns {
		ok, err := matchRecursive(filepath.ToSlash(pattern), file)
		if err != nil {
			return false, fmt.Errorf("exclude pattern %q: %w", pattern, err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// matchRecursive matches a slash-separated path against a glob where "**"
// spans any number of path segments and other segments use path.Match.
func matchRecursive(pattern, name string) (bool, error) {
	return matchSegments(strings.Split(pattern, "/"), strings.Split(name, "/"))
}

func matchSegments(pattern, name []string) (bool, error) {
	if len(pattern) == 0 {
		return len(name) == 0, nil
	}
	if pattern[0] == "**" {
		// Try consuming zero or more name segments.
		for skip := 0; skip <= len(name); skip++ {
			ok, err := matchSegments(pattern[1:], name[skip:])
			if err != nil || ok {
				return ok, err
			}
		}
		return false, nil
	}
	if len(name) == 0 {
		return false, nil
	}
	ok, err := path.Match(pattern[0], name[0])
	if err != nil || !ok {
		return false, err
	}
	return matchSegments(pattern[1:], name[1:])
}

func isRegularFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}
