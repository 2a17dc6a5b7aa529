package binpatch

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/ulikunitz/xz/lzma"

	"jarforge/internal/sortutil"
	"jarforge/internal/ziputil"
)

var zipMagic = []byte("PK\x03\x04")

// Set holds the patches for one side, keyed by class entry path.
type Set struct {
	Side    ziputil.Side
	Patches map[string]*Patch
}

// NewSet returns an empty set for side.
func NewSet(side ziputil.Side) *Set {
	return &Set{Side: side, Patches: make(map[string]*Patch)}
}

// Add registers p under its entry path.
func (s *Set) Add(p *Patch) { s.Patches[p.Path()] = p }

// Len returns the number of patches.
func (s *Set) Len() int { return len(s.Patches) }

// Paths returns the patched entry paths in order.
func (s *Set) Paths() []string { return sortutil.Keys(s.Patches) }

// LoadSet reads the patches for side from a patch-set file.
func LoadSet(file string, side ziputil.Side) (*Set, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read patch set %s: %w", file, err)
	}
	s, err := ReadSet(data, side)
	if err != nil {
		return nil, fmt.Errorf("patch set %s: %w", file, err)
	}
	return s, nil
}

// ReadSet decodes a patch-set archive. Data that does not start with a zip
// local header is treated as an LZMA stream wrapping the zip.
func ReadSet(data []byte, side ziputil.Side) (*Set, error) {
	if side == ziputil.SideNone {
		return nil, fmt.Errorf("patch set needs a side")
	}
	if !bytes.HasPrefix(data, zipMagic) {
		zr, err := lzma.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("open lzma stream: %w", err)
		}
		if data, err = io.ReadAll(zr); err != nil {
			return nil, fmt.Errorf("decompress lzma stream: %w", err)
		}
	}
	a, err := ziputil.Read(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open patch archive: %w", err)
	}
	prefix := "binpatch/" + side.String() + "/"
	s := NewSet(side)
	for _, p := range a.Paths() {
		if !strings.HasPrefix(p, prefix) || path.Ext(p) != ".binpatch" {
			continue
		}
		e, _ := a.Get(p)
		patch, err := DecodePatch(e.Data)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", p, err)
		}
		if prev, dup := s.Patches[patch.Path()]; dup {
			return nil, fmt.Errorf("duplicate patch for %s (%s)", patch.Path(), prev.Name)
		}
		s.Add(patch)
	}
	return s, nil
}
