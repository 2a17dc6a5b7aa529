package binpatch

import (
	"go.uber.org/zap"

	"jarforge/internal/ziputil"
)

// Applier applies patch sets to clean archives.
type Applier struct {
	Logger *zap.Logger
}

// Apply returns a new archive holding every clean entry, with class entries
// replaced by their patched bytes where set has a patch, plus classes the
// set creates. clean is not modified.
func (ap *Applier) Apply(clean *ziputil.Archive, set *Set) (*ziputil.Archive, error) {
	log := ap.Logger
	if log == nil {
		log = zap.NewNop()
	}
	out := ziputil.New()
	patched := 0
	for _, p := range clean.Paths() {
		e, _ := clean.Get(p)
		patch, ok := set.Patches[p]
		if !ok || !e.IsClass() {
			c := *e
			out.Put(&c)
			continue
		}
		data, err := applyOne(patch, e.Data)
		if err != nil {
			return nil, err
		}
		out.Put(&ziputil.Entry{Name: p, Data: data, Side: e.Side, Comment: e.Comment})
		patched++
	}
	created := 0
	for _, p := range set.Paths() {
		if _, ok := clean.Get(p); ok {
			continue
		}
		patch := set.Patches[p]
		if patch.Exists {
			return nil, &PatchApplicationError{Path: p, Want: patch.Checksum, Missing: true}
		}
		data, err := applyOne(patch, nil)
		if err != nil {
			return nil, err
		}
		out.Put(&ziputil.Entry{Name: p, Data: data})
		created++
	}
	log.Debug("applied patch set",
		zap.String("side", set.Side.String()),
		zap.Int("patched", patched),
		zap.Int("created", created),
		zap.Int("entries", out.Len()))
	return out, nil
}

func applyOne(patch *Patch, clean []byte) ([]byte, error) {
	src := clean
	if !patch.Exists {
		src = nil
	} else if got := Checksum(clean); got != patch.Checksum {
		return nil, &PatchApplicationError{Path: patch.Path(), Want: patch.Checksum, Got: got}
	}
	data, err := ApplyGDIFF(src, patch.Diff)
	if err != nil {
		return nil, &PatchApplicationError{Path: patch.Path(), Want: patch.Checksum, Err: err}
	}
	return data, nil
}
