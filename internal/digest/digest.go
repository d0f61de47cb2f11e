// Package digest computes deterministic content digests over repository
// subtrees. A digest changes if and only if the set of files under the given
// subpaths, or any file's contents, changes. It is the change-detection
// primitive that lets a reconcile pass skip loading and publishing when the
// synced content is unchanged.
package digest

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// Digest is an opaque fixed-size content summary. The zero value means "never
// computed" and never compares equal to a real digest.
type Digest string

// Equal reports whether two digests represent the same content. The zero
// digest is never equal to anything, including itself.
func (d Digest) Equal(other Digest) bool {
	return d != "" && d == other
}

func (d Digest) String() string {
	return string(d)
}

// ReadError indicates a file that exists but could not be read while hashing.
// It is distinct from a missing subpath, which is treated as an empty file set.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("cannot read %s: %v", e.Path, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// Tree computes the digest of the files under root/subpath for each given
// subpath. File entries are combined in sorted relative-path order so the
// result is independent of directory iteration order. A subpath that does not
// exist contributes an empty file set.
func Tree(root string, subpaths ...string) (Digest, error) {
	type entry struct {
		rel  string
		path string
	}

	var entries []entry
	for _, subpath := range subpaths {
		base := filepath.Join(root, subpath)
		err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) && path == base {
					return nil // absent subpath, not an error
				}
				return &ReadError{Path: path, Err: err}
			}
			if d.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			entries = append(entries, entry{rel: filepath.ToSlash(rel), path: path})
			return nil
		})
		if err != nil {
			return "", err
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].rel < entries[j].rel })

	h := sha256.New()
	for _, e := range entries {
		// Length-prefix the path so that (path, content) boundaries are
		// unambiguous in the hash input.
		var lenBuf [8]byte
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(e.rel)))
		h.Write(lenBuf[:])
		io.WriteString(h, e.rel)

		f, err := os.Open(e.path)
		if err != nil {
			return "", &ReadError{Path: e.path, Err: err}
		}
		n, err := io.Copy(h, f)
		f.Close()
		if err != nil {
			return "", &ReadError{Path: e.path, Err: err}
		}
		binary.BigEndian.PutUint64(lenBuf[:], uint64(n))
		h.Write(lenBuf[:])
	}

	return Digest(hex.EncodeToString(h.Sum(nil))), nil
}
