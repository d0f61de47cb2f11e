// Package loader parses and validates the publishable content of the synced
// source tree: Prometheus/Loki alerting and recording rule files, and Grafana
// dashboard definitions. Each file is processed independently; a malformed
// file yields a per-file error and never blocks its siblings.
package loader

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Record is one validated unit of publishable content. Name is derived from
// the file path relative to the scanned subpath and is the identity the
// downstream store diffs on. Payload is the canonical JSON wire form.
type Record struct {
	Name       string
	Payload    json.RawMessage
	SourcePath string
}

// FileError attributes a parse or validation failure to a single file.
type FileError struct {
	Path string
	Err  error
}

func (e FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

// ruleFileExtensions are the file suffixes scanned for rule definitions.
var ruleFileExtensions = []string{".rule", ".rules", ".yaml", ".yml"}

// dashboardExtensions are the file suffixes scanned for dashboards.
var dashboardExtensions = []string{".json"}

// RecordName derives a downstream record identity from a path relative to the
// scanned subpath: the extension is dropped and path separators and dots are
// flattened so the name is usable as a stable map key.
func RecordName(relPath string) string {
	name := strings.TrimSuffix(relPath, filepath.Ext(relPath))
	name = filepath.ToSlash(name)
	replacer := strings.NewReplacer("/", "_", ".", "_", " ", "_")
	return replacer.Replace(name)
}

// enumerate returns the matching files under root/subpath sorted by relative
// path. An absent subpath yields an empty list and no error; that case is not
// distinguishable from an empty directory, and deliberately so.
func enumerate(root, subpath string, extensions []string) ([]string, error) {
	base := filepath.Join(root, subpath)
	var files []string
	err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == base {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		for _, want := range extensions {
			if ext == want {
				files = append(files, path)
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// load is the shared per-file loop: every file is parsed independently and a
// failure is recorded against that file only.
func load(root, subpath string, extensions []string, parse func(relPath string, data []byte) (Record, error)) ([]Record, []FileError, error) {
	base := filepath.Join(root, subpath)
	files, err := enumerate(root, subpath, extensions)
	if err != nil {
		return nil, nil, fmt.Errorf("enumerating %s: %w", base, err)
	}

	var records []Record
	var fileErrors []FileError
	for _, path := range files {
		rel, err := filepath.Rel(base, path)
		if err != nil {
			fileErrors = append(fileErrors, FileError{Path: path, Err: err})
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			fileErrors = append(fileErrors, FileError{Path: path, Err: err})
			continue
		}
		record, err := parse(rel, data)
		if err != nil {
			fileErrors = append(fileErrors, FileError{Path: path, Err: err})
			continue
		}
		record.SourcePath = path
		records = append(records, record)
	}
	return records, fileErrors, nil
}
