// Package pipeline runs the patched-jar stages against a cache directory.
//
// Stages run strictly in order:
//
//	remap-rules → patch-universal (optional) → patch → merge (merged only)
//	→ access-transform → side-fix-and-finalize
//
// Each stage owns fixed artifact names in the store. A stage whose artifacts
// are all present is skipped unless an earlier stage of the same run already
// ran; once one stage runs, every later stage runs too. Presence is the only
// staleness signal. Before the first stage a global check may clear every
// artifact: on an explicit refresh, when the cache was written by another
// pipeline version, and depending on the policy when artifacts are missing.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"jarforge/internal/atrules"
	"jarforge/internal/cache"
	"jarforge/internal/config"
	"jarforge/internal/jarmerge"
	"jarforge/internal/meta"
	"jarforge/internal/metrics"
	"jarforge/internal/ziputil"
)

// Version is stamped into the manifest of produced jars and recorded in the
// snapshot. Bump it whenever a stage would produce different output.
const Version = "1"

// VersionAttribute is the manifest main attribute carrying Version.
const VersionAttribute = meta.VersionAttribute

// Stage names.
const (
	StageRemapRules     = "remap-rules"
	StagePatchUniversal = "patch-universal"
	StagePatch          = "patch"
	StageMerge          = "merge"
	StageAccess         = "access-transform"
	StageFinalize       = "side-fix-and-finalize"
)

// Fixed artifact names.
const (
	ArtifactRules     = "access-transformer.cfg"
	ArtifactUniversal = "universal-patched.jar"
	ArtifactClient    = "client-patched.jar"
	ArtifactServer    = "server-patched.jar"
	ArtifactMerged    = "merged-patched.jar"
)

// ATPatched returns the access-transformed artifact name for a type.
func ATPatched(typ string) string { return typ + "-at-patched.jar" }

// Final returns the finalized artifact name for a type.
func Final(typ string) string { return typ + "-final.jar" }

// Invalidation reasons.
const (
	ReasonRefresh = "refresh"
	ReasonVersion = "version"
	ReasonMissing = "missing"
	ReasonHole    = "hole"
	ReasonStale   = "stale-output"
)

// JarMerger merges a client and a server jar into outPath.
type JarMerger interface {
	MergeFiles(clientPath, serverPath, outPath string) error
}

// Inputs names the files a run reads.
type Inputs struct {
	ClientJar         string
	ServerJar         string
	Patches           string
	AccessTransformer string
	Universal         string
}

// Options configures a Controller.
type Options struct {
	Type string
	// Policy is config.PolicyResume (default) or config.PolicyStrict.
	Policy string
	// Refresh clears every artifact before the first stage.
	Refresh bool
	Workers int
	Inputs  Inputs
	// Symbols remaps rule targets; nil leaves them unchanged.
	Symbols atrules.SymbolMap
	// Merger defaults to a jarmerge.Merger with the synthetic parameter
	// offset enabled.
	Merger  JarMerger
	Logger  *zap.Logger
	Metrics *metrics.Recorder
}

// RunState is threaded through every stage of one run.
type RunState struct {
	// Dirty is set by the first stage that runs and forces all later ones.
	Dirty   bool
	Ran     []string
	Skipped []string
}

// Result describes a finished run.
type Result struct {
	// Final is the path of the finalized jar.
	Final string
	State RunState
	RunID string
	// Invalidated holds the reason for a global invalidation, if any.
	Invalidated string
	// Changes lists artifacts that differ from the previous run.
	Changes cache.Delta
}

type stage struct {
	name    string
	outputs []string
	run     func(ctx context.Context) error
}

// Controller runs the pipeline against one store. It is not safe for
// concurrent use, and two controllers must not share a store.
//
// A missing final jar is not a global trigger under the default resume
// policy: only the trailing stages whose outputs are gone run again. The
// strict policy clears the whole cache in that case.
type Controller struct {
	store   *cache.Store
	opts    Options
	log     *zap.Logger
	metrics *metrics.Recorder
	stages  []stage
}

// New validates opts and prepares the stage list.
func New(store *cache.Store, opts Options) (*Controller, error) {
	switch opts.Type {
	case config.TypeMerged, config.TypeClient, config.TypeServer:
	default:
		return nil, fmt.Errorf("unknown distribution type %q", opts.Type)
	}
	switch opts.Policy {
	case "":
		opts.Policy = config.PolicyResume
	case config.PolicyResume, config.PolicyStrict:
	default:
		return nil, fmt.Errorf("unknown invalidation policy %q", opts.Policy)
	}
	if opts.Merger == nil {
		opts.Merger = &jarmerge.Merger{SyntheticParamsOffset: true, Logger: opts.Logger}
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	c := &Controller{
		store:   store,
		opts:    opts,
		log:     log.With(zap.String("component", "pipeline")),
		metrics: opts.Metrics,
	}
	c.stages = c.buildStages()
	return c, nil
}

func (c *Controller) sides() []ziputil.Side {
	switch c.opts.Type {
	case config.TypeClient:
		return []ziputil.Side{ziputil.SideClient}
	case config.TypeServer:
		return []ziputil.Side{ziputil.SideServer}
	}
	return []ziputil.Side{ziputil.SideServer, ziputil.SideClient}
}

func patchedName(side ziputil.Side) string {
	if side == ziputil.SideServer {
		return ArtifactServer
	}
	return ArtifactClient
}

// basePatched is the input of the access-transform stage.
func (c *Controller) basePatched() string {
	switch c.opts.Type {
	case config.TypeClient:
		return ArtifactClient
	case config.TypeServer:
		return ArtifactServer
	}
	return ArtifactMerged
}

func (c *Controller) buildStages() []stage {
	var patched []string
	for _, s := range c.sides() {
		patched = append(patched, patchedName(s))
	}
	stages := []stage{{name: StageRemapRules, outputs: []string{ArtifactRules}, run: c.remapRules}}
	if c.opts.Inputs.Universal != "" {
		stages = append(stages, stage{name: StagePatchUniversal, outputs: []string{ArtifactUniversal}, run: c.patchUniversal})
	}
	stages = append(stages, stage{name: StagePatch, outputs: patched, run: c.patch})
	if c.opts.Type == config.TypeMerged {
		stages = append(stages, stage{name: StageMerge, outputs: []string{ArtifactMerged}, run: c.merge})
	}
	return append(stages,
		stage{name: StageAccess, outputs: []string{ATPatched(c.opts.Type)}, run: c.accessTransform},
		stage{name: StageFinalize, outputs: []string{Final(c.opts.Type)}, run: c.finalize},
	)
}

// FinalPath returns where the finalized jar is installed.
func (c *Controller) FinalPath() string { return c.store.Path(Final(c.opts.Type)) }

// Artifacts returns every artifact name the run owns, in stage order.
func (c *Controller) Artifacts() []string {
	var out []string
	for _, s := range c.stages {
		out = append(out, s.outputs...)
	}
	return out
}

func (c *Controller) present(name string) (bool, error) {
	ok, err := c.store.Exists(name)
	return ok, ioFailure("stat", c.store.Path(name), err)
}

func (c *Controller) allPresent(names []string) (bool, error) {
	for _, n := range names {
		ok, err := c.present(n)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// invalidation returns the reason the cache must be cleared, or "".
func (c *Controller) invalidation() (string, error) {
	if c.opts.Refresh {
		return ReasonRefresh, nil
	}
	snap, err := c.store.Load()
	if err != nil {
		return "", ioFailure("read", c.store.Path("index.json"), err)
	}
	if snap != nil && (snap.FormatVersion != cache.FormatVersion || snap.PipelineVersion != Version) {
		return ReasonVersion, nil
	}

	presence := make([]bool, len(c.stages))
	for i, s := range c.stages {
		if presence[i], err = c.allPresent(s.outputs); err != nil {
			return "", err
		}
	}
	for i := range c.stages {
		if presence[i] {
			continue
		}
		if c.opts.Policy == config.PolicyStrict {
			return ReasonMissing, nil
		}
		for _, later := range presence[i+1:] {
			if later {
				return ReasonHole, nil
			}
		}
	}

	final := Final(c.opts.Type)
	if presence[len(presence)-1] {
		if c.staleJar(final) {
			return ReasonStale, nil
		}
	}
	return "", nil
}

// staleJar reports whether a produced jar lacks the current version stamp.
// An unreadable jar counts as stale.
func (c *Controller) staleJar(name string) bool {
	inf, err := meta.Detect(c.store.Path(name))
	if err != nil {
		c.log.Warn("unreadable artifact", zap.String("name", name), zap.Error(err))
		return true
	}
	return inf.Pipeline != Version
}

// Run executes the pipeline. Canceling ctx aborts the run between stages and
// inside parallel rewrites; no partial artifact is installed either way.
func (c *Controller) Run(ctx context.Context) (*Result, error) {
	runID := uuid.NewString()
	log := c.log.With(zap.String("run_id", runID), zap.String("type", c.opts.Type))
	start := time.Now()

	swept, err := c.store.SweepLeftovers()
	if err != nil {
		return nil, ioFailure("remove", c.store.Dir(), err)
	}
	if len(swept) > 0 {
		log.Warn("removed files of an interrupted install", zap.Strings("files", swept))
	}

	prev, err := c.store.Load()
	if err != nil {
		return nil, ioFailure("read", c.store.Path("index.json"), err)
	}
	reason, err := c.invalidation()
	if err != nil {
		return nil, err
	}
	if reason != "" {
		log.Info("invalidating cache", zap.String("reason", reason))
		c.metrics.Invalidation(reason)
		if err := c.store.Remove(c.Artifacts()...); err != nil {
			return nil, ioFailure("remove", c.store.Dir(), err)
		}
	}

	var st RunState
	for _, s := range c.stages {
		if err := ctx.Err(); err != nil {
			return nil, &StageError{Stage: s.name, Err: err}
		}
		if st, err = c.step(ctx, log, s, st); err != nil {
			return nil, err
		}
	}

	res := &Result{
		Final:       c.FinalPath(),
		State:       st,
		RunID:       runID,
		Invalidated: reason,
	}
	snap, err := c.store.Capture(runID, Version, c.Artifacts())
	if err != nil {
		return nil, ioFailure("hash", c.store.Dir(), err)
	}
	snap.Type = c.opts.Type
	res.Changes = cache.BuildDelta(prev, snap)
	if err := c.store.Save(snap); err != nil {
		return nil, ioFailure("write", c.store.Path("index.json"), err)
	}
	changes := len(res.Changes.Added) + len(res.Changes.Removed) + len(res.Changes.Changed)
	c.metrics.ArtifactChanges(changes)
	log.Info("pipeline finished",
		zap.Strings("ran", st.Ran),
		zap.Strings("skipped", st.Skipped),
		zap.Int("artifact_changes", changes),
		zap.Duration("took", time.Since(start)))
	return res, nil
}

// step decides whether s runs and returns the updated state.
func (c *Controller) step(ctx context.Context, log *zap.Logger, s stage, st RunState) (RunState, error) {
	present, err := c.allPresent(s.outputs)
	if err != nil {
		return st, &StageError{Stage: s.name, Err: err}
	}
	if present && !st.Dirty {
		log.Info("stage up to date", zap.String("stage", s.name))
		c.metrics.Stage(s.name, metrics.OutcomeSkipped, 0)
		st.Skipped = append(st.Skipped, s.name)
		return st, nil
	}

	log.Info("running stage", zap.String("stage", s.name), zap.Bool("forced", present))
	begin := time.Now()
	if err := s.run(ctx); err != nil {
		c.metrics.Stage(s.name, metrics.OutcomeFailed, time.Since(begin))
		log.Error("stage failed", zap.String("stage", s.name), zap.Error(err))
		return st, &StageError{Stage: s.name, Err: err}
	}
	c.metrics.Stage(s.name, metrics.OutcomeRan, time.Since(begin))
	log.Info("stage finished", zap.String("stage", s.name), zap.Duration("took", time.Since(begin)))
	st.Dirty = true
	st.Ran = append(st.Ran, s.name)
	return st, nil
}

// StagePlan is the predicted decision for one stage.
type StagePlan struct {
	Name    string
	Outputs []string
	Present bool
	Run     bool
}

// Plan predicts what Run would do without touching the store.
type Plan struct {
	Invalidate string
	Stages     []StagePlan
}

// Plan returns the decisions Run would make right now.
func (c *Controller) Plan() (*Plan, error) {
	reason, err := c.invalidation()
	if err != nil {
		return nil, err
	}
	p := &Plan{Invalidate: reason}
	dirty := false
	for _, s := range c.stages {
		present, err := c.allPresent(s.outputs)
		if err != nil {
			return nil, err
		}
		sp := StagePlan{Name: s.name, Outputs: s.outputs, Present: present}
		sp.Run = reason != "" || dirty || !present
		dirty = dirty || sp.Run
		p.Stages = append(p.Stages, sp)
	}
	return p, nil
}

// IsIOFailure reports whether err stems from artifact or input IO.
func IsIOFailure(err error) bool {
	var f *IOFailure
	return errors.As(err, &f)
}
