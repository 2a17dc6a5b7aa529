package pipeline

import (
	"bytes"
	"context"
	"os"

	"go.uber.org/zap"

	"jarforge/internal/atrules"
	"jarforge/internal/binpatch"
	"jarforge/internal/jarmerge"
	"jarforge/internal/mapping"
	"jarforge/internal/rewrite"
	"jarforge/internal/ziputil"
)

// Entries with special meaning inside the universal jar.
const (
	universalPatchPack = "binpatches.pack.lzma"
	universalRules     = "forge_at.cfg"
	// EmbeddedRules is where a jar carries its own access transformer.
	EmbeddedRules = "META-INF/accesstransformer.cfg"
)

// archiveMerger is implemented by mergers that can work in memory and
// report what they did.
type archiveMerger interface {
	Merge(client, server *ziputil.Archive) (*ziputil.Archive, jarmerge.Stats, error)
}

func (c *Controller) symbols() atrules.SymbolMap {
	if c.opts.Symbols == nil {
		return mapping.Identity{}
	}
	return c.opts.Symbols
}

func readInput(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	return data, ioFailure("read", path, err)
}

func openArchive(path string) (*ziputil.Archive, error) {
	a, err := ziputil.Open(path)
	return a, ioFailure("read", path, err)
}

func (c *Controller) openArtifact(name string) (*ziputil.Archive, error) {
	return openArchive(c.store.Path(name))
}

func (c *Controller) install(name string, a *ziputil.Archive) error {
	err := c.store.Install(name, a.WriteFile)
	return ioFailure("write", c.store.Path(name), err)
}

// stamp records the pipeline version in the archive manifest.
func stamp(a *ziputil.Archive) error {
	m, err := a.Manifest()
	if err != nil {
		return err
	}
	m.Set(VersionAttribute, Version)
	a.SetManifest(m)
	return nil
}

func (c *Controller) rewrite(ctx context.Context, a *ziputil.Archive, name string, t rewrite.Transform) (*ziputil.Archive, error) {
	out, st, err := rewrite.Archive(ctx, a, t, rewrite.Options{
		Name:    name,
		Workers: c.opts.Workers,
		Logger:  c.log,
	})
	if err != nil {
		return nil, err
	}
	c.metrics.Rewrite(name, st.Visited, st.Changed)
	return out, nil
}

func (c *Controller) remapRules(context.Context) error {
	set := &atrules.Set{}
	if p := c.opts.Inputs.AccessTransformer; p != "" {
		data, err := readInput(p)
		if err != nil {
			return err
		}
		if set, err = atrules.Parse(bytes.NewReader(data)); err != nil {
			return err
		}
	}
	remapped, err := atrules.Remap(set, c.symbols())
	if err != nil {
		return err
	}
	c.log.Debug("remapped access transformer", zap.Int("rules", remapped.Len()))
	var b bytes.Buffer
	if _, err := remapped.WriteTo(&b); err != nil {
		return err
	}
	return ioFailure("write", c.store.Path(ArtifactRules), c.store.InstallBytes(ArtifactRules, b.Bytes()))
}

// patchUniversal prepares the universal jar for overlaying: the embedded
// patch pack and signatures go, and its own rules are remapped into
// EmbeddedRules.
func (c *Controller) patchUniversal(context.Context) error {
	a, err := openArchive(c.opts.Inputs.Universal)
	if err != nil {
		return err
	}
	a.Delete(universalPatchPack)
	if _, err := ziputil.StripSignatures(a); err != nil {
		return err
	}
	if e, ok := a.Get(universalRules); ok {
		set, err := atrules.Parse(bytes.NewReader(e.Data))
		if err != nil {
			return err
		}
		remapped, err := atrules.Remap(set, c.symbols())
		if err != nil {
			return err
		}
		a.Delete(universalRules)
		a.Put(&ziputil.Entry{Name: EmbeddedRules, Data: []byte(remapped.String())})
	}
	if err := stamp(a); err != nil {
		return err
	}
	return c.install(ArtifactUniversal, a)
}

func (c *Controller) cleanJar(side ziputil.Side) string {
	if side == ziputil.SideServer {
		return c.opts.Inputs.ServerJar
	}
	return c.opts.Inputs.ClientJar
}

func (c *Controller) patch(ctx context.Context) error {
	packed, err := readInput(c.opts.Inputs.Patches)
	if err != nil {
		return err
	}
	ap := &binpatch.Applier{Logger: c.log}
	for _, side := range c.sides() {
		if err := ctx.Err(); err != nil {
			return err
		}
		set, err := binpatch.ReadSet(packed, side)
		if err != nil {
			return err
		}
		clean, err := openArchive(c.cleanJar(side))
		if err != nil {
			return err
		}
		patched, err := ap.Apply(clean, set)
		if err != nil {
			return err
		}
		if _, err := ziputil.StripSignatures(patched); err != nil {
			return err
		}
		fixed, err := c.rewrite(ctx, patched, "parameter-counts", rewrite.FixParameterCounts)
		if err != nil {
			return err
		}
		c.metrics.Patched(side.String(), set.Len())
		c.log.Info("patched jar",
			zap.String("side", side.String()),
			zap.Int("patches", set.Len()),
			zap.Int("entries", fixed.Len()))
		if err := c.install(patchedName(side), fixed); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) merge(context.Context) error {
	client, server := c.store.Path(ArtifactClient), c.store.Path(ArtifactServer)
	am, ok := c.opts.Merger.(archiveMerger)
	if !ok {
		return c.store.Install(ArtifactMerged, func(tmp string) error {
			return c.opts.Merger.MergeFiles(client, server, tmp)
		})
	}
	ca, err := openArchive(client)
	if err != nil {
		return err
	}
	sa, err := openArchive(server)
	if err != nil {
		return err
	}
	merged, st, err := am.Merge(ca, sa)
	if err != nil {
		return err
	}
	c.metrics.Merge(map[string]int{
		"identical":   st.Identical,
		"merged":      st.Merged,
		"client_only": st.ClientOnly,
		"server_only": st.ServerOnly,
		"conflict":    st.Conflicts,
	})
	return c.install(ArtifactMerged, merged)
}

// universalOverlay reports whether a universal entry replaces the patched
// one. The patched jar keeps its own manifest, and the embedded rules are
// applied rather than shipped.
func universalOverlay(p string) bool {
	return p != ziputil.ManifestPath && p != EmbeddedRules && !ziputil.IsSignatureFile(p)
}

func (c *Controller) accessTransform(ctx context.Context) error {
	data, err := readInput(c.store.Path(ArtifactRules))
	if err != nil {
		return err
	}
	set, err := atrules.Parse(bytes.NewReader(data))
	if err != nil {
		return err
	}
	a, err := c.openArtifact(c.basePatched())
	if err != nil {
		return err
	}
	if c.opts.Inputs.Universal != "" {
		u, err := c.openArtifact(ArtifactUniversal)
		if err != nil {
			return err
		}
		if e, ok := u.Get(EmbeddedRules); ok {
			extra, err := atrules.Parse(bytes.NewReader(e.Data))
			if err != nil {
				return err
			}
			set.Rules = append(set.Rules, extra.Rules...)
		}
		n := ziputil.CopyReplacing(a, u, universalOverlay)
		c.log.Debug("overlaid universal jar", zap.Int("entries", n))
	}
	ap := atrules.NewApplier(set)
	c.log.Info("applying access transformer",
		zap.Int("rules", set.Len()),
		zap.Int("classes", ap.Classes()))
	out, err := c.rewrite(ctx, a, "access-transform", ap.Transform)
	if err != nil {
		return err
	}
	if err := stamp(out); err != nil {
		return err
	}
	return c.install(ATPatched(c.opts.Type), out)
}

func (c *Controller) finalize(ctx context.Context) error {
	a, err := c.openArtifact(ATPatched(c.opts.Type))
	if err != nil {
		return err
	}
	out, err := c.rewrite(ctx, a, "side-annotations", rewrite.MergeSideAnnotations)
	if err != nil {
		return err
	}
	if err := stamp(out); err != nil {
		return err
	}
	return c.install(Final(c.opts.Type), out)
}
