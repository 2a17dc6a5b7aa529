// Package rewrite runs class-level transforms over every class entry of an
// archive.
//
// Transforms are pure functions of (path, bytes). They must return the input
// slice unchanged when nothing needs rewriting, so running a transform twice
// is a no-op on the second pass. Archive fans the work out over a bounded
// errgroup; the first failure cancels the remaining entries and no partial
// result is returned.
package rewrite

import (
	"bytes"
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"jarforge/internal/classfile"
	"jarforge/internal/ziputil"
)

// Transform rewrites one class file.
type Transform func(path string, data []byte) ([]byte, error)

// Chain composes transforms left to right.
func Chain(ts ...Transform) Transform {
	return func(path string, data []byte) ([]byte, error) {
		var err error
		for _, t := range ts {
			if data, err = t(path, data); err != nil {
				return nil, err
			}
		}
		return data, nil
	}
}

// Options tunes Archive.
type Options struct {
	// Name labels the transform in logs.
	Name string
	// Workers bounds concurrency; zero means GOMAXPROCS.
	Workers int
	Logger  *zap.Logger
}

// Stats summarizes one Archive call.
type Stats struct {
	Visited int
	Changed int
}

// Archive applies t to every class entry of src and returns the rewritten
// copy. src is left untouched.
func Archive(ctx context.Context, src *ziputil.Archive, t Transform, opts Options) (*ziputil.Archive, Stats, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	start := time.Now()
	dst := src.Clone()
	paths := src.ClassPaths()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	var changed atomic.Int64
	for _, p := range paths {
		p := p
		e, _ := src.Get(p)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out, err := t(p, e.Data)
			if err != nil {
				return classfile.WithPath(p, err)
			}
			if !bytes.Equal(out, e.Data) {
				dst.Put(&ziputil.Entry{Name: p, Data: out, Side: e.Side, Comment: e.Comment})
				changed.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, Stats{}, err
	}
	st := Stats{Visited: len(paths), Changed: int(changed.Load())}
	log.Debug("rewrote archive",
		zap.String("transform", opts.Name),
		zap.Int("classes", st.Visited),
		zap.Int("changed", st.Changed),
		zap.Int("workers", workers),
		zap.Duration("took", time.Since(start)))
	return dst, st, nil
}
