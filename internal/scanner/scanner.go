// Package scanner discovers markdown files across a set of paths.
package scanner

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ScannedFile is metadata for a discovered markdown file.
type ScannedFile struct {
	Path    string
	ModTime time.Time
	Size    int64
}

// Options controls a scan.
type Options struct {
	// Extensions recognized as markdown. Defaults to .md and .markdown.
	Extensions []string

	// IncludeHidden scans dotfiles and dot-directories too.
	IncludeHidden bool
}

// Scan walks paths (files or directories) and returns every markdown file
// found, deduplicated by resolved path and sorted by path.
func Scan(paths []string, opts Options) ([]ScannedFile, error) {
	exts := opts.Extensions
	if len(exts) == 0 {
		exts = []string{".md", ".markdown"}
	}

	seen := make(map[string]bool)
	var results []ScannedFile

	add := func(path string, info fs.FileInfo) {
		if !hasExt(path, exts) {
			return
		}
		resolved, err := filepath.Abs(path)
		if err != nil {
			resolved = path
		}
		if seen[resolved] {
			return
		}
		seen[resolved] = true
		results = append(results, ScannedFile{
			Path:    resolved,
			ModTime: info.ModTime(),
			Size:    info.Size(),
		})
	}

	for _, p := range paths {
		root := ExpandPath(p)
		info, err := os.Stat(root)
		if err != nil {
			return nil, err
		}

		if !info.IsDir() {
			add(root, info)
			continue
		}

		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			hidden := strings.HasPrefix(d.Name(), ".") && path != root
			if d.IsDir() {
				if hidden && !opts.IncludeHidden {
					return filepath.SkipDir
				}
				return nil
			}
			if hidden && !opts.IncludeHidden {
				return nil
			}
			fi, err := d.Info()
			if err != nil {
				return err
			}
			add(path, fi)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Path < results[j].Path })
	return results, nil
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

func hasExt(path string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}
