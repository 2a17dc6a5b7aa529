// Package ziputil holds class archives in memory and writes them back as
// reproducible zip files.
//
// Goals:
//   - Deterministic output: entries are written in sorted order (manifest
//     first) with a fixed timestamp and mode, so equal archives produce equal
//     bytes.
//   - Safe concurrent updates: parallel rewriters may Put distinct paths.
//   - Side markers survive a write/read cycle through the entry comment.
package ziputil

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"jarforge/internal/sortutil"
)

// FixedZipTime is stamped on every entry (1980-01-01 UTC, the DOS epoch).
var FixedZipTime = time.Unix(315532800, 0).UTC()

// ManifestPath is the JAR manifest entry.
const ManifestPath = "META-INF/MANIFEST.MF"

const sideCommentPrefix = "side="

// Side marks an entry as present in only one distribution.
type Side uint8

const (
	SideNone Side = iota
	SideClient
	SideServer
)

func (s Side) String() string {
	switch s {
	case SideClient:
		return "client"
	case SideServer:
		return "server"
	}
	return ""
}

// ParseSide is the inverse of Side.String. The empty string is SideNone.
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return SideNone, nil
	case "client":
		return SideClient, nil
	case "server":
		return SideServer, nil
	}
	return SideNone, fmt.Errorf("unknown side %q", s)
}

// Entry is one archive member.
type Entry struct {
	Name    string
	Data    []byte
	Side    Side
	Comment string
}

// IsClass reports whether the entry holds a class file.
func (e *Entry) IsClass() bool { return IsClassPath(e.Name) }

// IsClassPath reports whether an entry path names a class file.
func IsClassPath(p string) bool { return strings.HasSuffix(p, ".class") }

// Archive maps entry paths to entries. Directory entries are not kept.
type Archive struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// New returns an empty archive.
func New() *Archive {
	return &Archive{entries: make(map[string]*Entry)}
}

// SanitizePath turns an entry name into a clean relative slash path. Dot
// segments are resolved and ".." never climbs above the jar root.
func SanitizePath(p string) string {
	s := filepath.ToSlash(p)
	if len(s) > 1 && s[1] == ':' {
		s = s[2:]
	}
	s = strings.TrimLeft(s, "/")
	parts := strings.Split(s, "/")
	stack := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" || part == "." {
			continue
		}
		if part == ".." {
			if n := len(stack); n > 0 {
				stack = stack[:n-1]
			}
			continue
		}
		stack = append(stack, part)
	}
	s = strings.Join(stack, "/")
	if s == "" {
		return "entry"
	}
	return s
}

// Open reads a zip archive from disk.
func Open(path string) (*Archive, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}
	a, err := Read(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("read archive %s: %w", path, err)
	}
	return a, nil
}

// Read loads every non-directory entry of a zip archive.
func Read(r io.ReaderAt, size int64) (*Archive, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, err
	}
	a := New()
	for _, f := range zr.File {
		if strings.HasSuffix(f.Name, "/") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Name, err)
		}
		e := &Entry{Name: SanitizePath(f.Name), Data: data}
		e.Side, e.Comment = splitComment(f.Comment)
		a.entries[e.Name] = e
	}
	return a, nil
}

func splitComment(c string) (Side, string) {
	if !strings.HasPrefix(c, sideCommentPrefix) {
		return SideNone, c
	}
	rest := c[len(sideCommentPrefix):]
	tag, tail, _ := strings.Cut(rest, " ")
	s, err := ParseSide(tag)
	if err != nil {
		return SideNone, c
	}
	return s, tail
}

func joinComment(e *Entry) string {
	if e.Side == SideNone {
		return e.Comment
	}
	if e.Comment == "" {
		return sideCommentPrefix + e.Side.String()
	}
	return sideCommentPrefix + e.Side.String() + " " + e.Comment
}

// Get returns the entry at path.
func (a *Archive) Get(path string) (*Entry, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	e, ok := a.entries[path]
	return e, ok
}

// Put stores e under its sanitized name, replacing any previous entry.
func (a *Archive) Put(e *Entry) {
	e.Name = SanitizePath(e.Name)
	a.mu.Lock()
	a.entries[e.Name] = e
	a.mu.Unlock()
}

// Delete removes path. Missing paths are ignored.
func (a *Archive) Delete(path string) {
	a.mu.Lock()
	delete(a.entries, path)
	a.mu.Unlock()
}

// Len returns the number of entries.
func (a *Archive) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.entries)
}

// Paths returns all entry paths in lexicographic order.
func (a *Archive) Paths() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return sortutil.Keys(a.entries)
}

// ClassPaths returns the sorted class entry paths.
func (a *Archive) ClassPaths() []string {
	var out []string
	for _, p := range a.Paths() {
		if IsClassPath(p) {
			out = append(out, p)
		}
	}
	return out
}

// Clone returns a shallow copy: entries are copied, data slices are shared.
func (a *Archive) Clone() *Archive {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := &Archive{entries: make(map[string]*Entry, len(a.entries))}
	for k, e := range a.entries {
		c := *e
		out.entries[k] = &c
	}
	return out
}

// writeOrder puts the manifest first, as JAR readers expect.
func (a *Archive) writeOrder() []string {
	paths := a.Paths()
	out := make([]string, 0, len(paths))
	if _, ok := a.Get(ManifestPath); ok {
		out = append(out, ManifestPath)
	}
	for _, p := range paths {
		if p != ManifestPath {
			out = append(out, p)
		}
	}
	return out
}

// WriteTo writes the archive as a zip stream.
func (a *Archive) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	zw := zip.NewWriter(cw)
	for _, p := range a.writeOrder() {
		e, _ := a.Get(p)
		h := &zip.FileHeader{Name: e.Name, Method: zip.Deflate, Comment: joinComment(e)}
		h.SetMode(0o644)
		h.Modified = FixedZipTime
		fw, err := zw.CreateHeader(h)
		if err != nil {
			return cw.n, fmt.Errorf("create %s: %w", e.Name, err)
		}
		if _, err := fw.Write(e.Data); err != nil {
			return cw.n, fmt.Errorf("write %s: %w", e.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return cw.n, fmt.Errorf("close zip: %w", err)
	}
	return cw.n, nil
}

// Bytes returns the archive as zip bytes.
func (a *Archive) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := a.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// WalkPair visits the sorted union of paths in a and b. Either entry is nil
// when the path is absent from that archive.
func WalkPair(a, b *Archive, fn func(path string, ea, eb *Entry) error) error {
	for _, p := range sortutil.Union(a.Paths(), b.Paths()) {
		ea, _ := a.Get(p)
		eb, _ := b.Get(p)
		if err := fn(p, ea, eb); err != nil {
			return err
		}
	}
	return nil
}

// CopyReplacing overlays src entries accepted by keep onto dst. A nil keep
// accepts everything.
func CopyReplacing(dst, src *Archive, keep func(path string) bool) int {
	n := 0
	for _, p := range src.Paths() {
		if keep != nil && !keep(p) {
			continue
		}
		e, _ := src.Get(p)
		c := *e
		dst.Put(&c)
		n++
	}
	return n
}

// WriteFile writes the archive to path, truncating any existing file.
func (a *Archive) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create archive %s: %w", path, err)
	}
	if _, err := a.WriteTo(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write archive %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync archive %s: %w", path, err)
	}
	return f.Close()
}
