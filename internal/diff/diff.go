// Package diff renders unified diffs between the client and server dumps of
// a class member, using github.com/pmezard/go-difflib.
package diff

import (
	"fmt"

	difflib "github.com/pmezard/go-difflib/difflib"
)

const defaultContext = 3

// Options tunes Unified.
type Options struct {
	// MaxBytes caps the combined input size; larger inputs yield a stub.
	// Zero disables the cap.
	MaxBytes int
	// Context is the number of unchanged lines kept around each hunk.
	Context int
}

// Unified diffs a against b. truncated reports that the inputs exceeded
// opt.MaxBytes and only a stub was produced.
func Unified(aName, bName, a, b string, opt Options) (body string, truncated bool) {
	if opt.MaxBytes > 0 && len(a)+len(b) > opt.MaxBytes {
		return stub(aName, bName, fmt.Sprintf("%d bytes over limit", len(a)+len(b)-opt.MaxBytes)), true
	}
	context := opt.Context
	if context <= 0 {
		context = defaultContext
	}
	out, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(a),
		B:        difflib.SplitLines(b),
		FromFile: aName,
		ToFile:   bName,
		Context:  context,
	})
	switch {
	case err != nil:
		return stub(aName, bName, err.Error()), false
	case out == "":
		return stub(aName, bName, "no line differences"), false
	}
	return out, false
}

func stub(aName, bName, why string) string {
	return fmt.Sprintf("--- %s\n+++ %s\n@@ %s @@\n", aName, bName, why)
}
