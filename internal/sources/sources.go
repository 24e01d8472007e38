// Package sources discovers and reads the program files a run scans.
package sources

import (
	"bytes"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

var (
	DefaultExtensions = []string{".js", ".mjs", ".cjs", ".ts", ".tsx", ".jsx", ".py", ".go", ".java", ".rb", ".php", ".cs", ".kt"}
	DefaultExclude    = []string{"node_modules", ".git", "vendor", "dist", "build"}
)

// DefaultMaxBytes skips minified bundles and generated blobs.
const DefaultMaxBytes int64 = 2 << 20

// Document is one source file read into memory.
type Document struct {
	Path string // slash-separated, as walked
	Text string // CRLF-normalised
}

type Walker struct {
	FS         afero.Fs
	Extensions []string
	Exclude    []string // directory base names skipped entirely
	MaxBytes   int64
}

// NewWalker returns a Walker on the OS filesystem with default filters.
func NewWalker() *Walker {
	return &Walker{FS: afero.NewOsFs(), Extensions: DefaultExtensions, Exclude: DefaultExclude, MaxBytes: DefaultMaxBytes}
}

// Walk collects matching files under root sorted by path. root may also be
// a single file, which is read regardless of its extension. Unreadable or
// oversized files become warnings, not errors.
func (w *Walker) Walk(root string) ([]Document, []string, error) {
	fsys := w.FS
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	info, err := fsys.Stat(root)
	if err != nil {
		return nil, nil, fmt.Errorf("stat %s: %w", root, err)
	}

	var (
		docs     []Document
		warnings []string
	)
	read := func(p string, size int64) {
		if w.MaxBytes > 0 && size > w.MaxBytes {
			warnings = append(warnings, fmt.Sprintf("%s: skipped, %d bytes exceeds limit %d", p, size, w.MaxBytes))
			return
		}
		b, err := afero.ReadFile(fsys, p)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", p, err))
			return
		}
		if isBinary(b) {
			warnings = append(warnings, p+": skipped, binary content")
			return
		}
		docs = append(docs, Document{Path: filepath.ToSlash(p), Text: Normalize(string(b))})
	}

	if !info.IsDir() {
		read(root, info.Size())
		return docs, warnings, nil
	}

	err = afero.Walk(fsys, root, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", p, err))
			return nil
		}
		if fi.IsDir() {
			if p != root && w.excluded(fi.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !w.wanted(fi.Name()) {
			return nil
		}
		read(p, fi.Size())
		return nil
	})
	if err != nil {
		return nil, warnings, fmt.Errorf("walk %s: %w", root, err)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Path < docs[j].Path })
	return docs, warnings, nil
}

// Wants reports whether a file at p would be collected by a directory walk:
// its extension is wanted and no directory on the way is excluded.
func (w *Walker) Wants(p string) bool {
	p = filepath.ToSlash(p)
	dirs := strings.Split(path.Dir(p), "/")
	for _, d := range dirs {
		if w.excluded(d) {
			return false
		}
	}
	return w.wanted(path.Base(p))
}

// Excludes reports whether a directory with base name dir is skipped.
func (w *Walker) Excludes(dir string) bool { return w.excluded(dir) }

func (w *Walker) wanted(name string) bool {
	exts := w.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}

func (w *Walker) excluded(dir string) bool {
	for _, x := range w.Exclude {
		if strings.EqualFold(dir, x) {
			return true
		}
	}
	return false
}

// Normalize converts CRLF and lone CR line endings to LF.
func Normalize(text string) string {
	if !strings.Contains(text, "\r") {
		return text
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}

// isBinary treats a NUL in the first 8KiB as binary.
func isBinary(b []byte) bool {
	if len(b) > 8192 {
		b = b[:8192]
	}
	return bytes.IndexByte(b, 0) >= 0
}
