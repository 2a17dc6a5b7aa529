package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jarforge/internal/atrules"
	"jarforge/internal/cache"
	"jarforge/internal/jarmerge"
	"jarforge/internal/mapping"
	"jarforge/internal/meta"
	"jarforge/internal/metrics"
	"jarforge/internal/pipeline"
	"jarforge/internal/validate"
)

func pipelineVersion() string { return pipeline.Version }

// symbols loads the configured mapping table, or nil when none is set.
func (a *app) symbols() (atrules.SymbolMap, error) {
	m := a.cfg.Mappings
	if m.Path == "" {
		return nil, nil
	}
	tree, err := mapping.Load(m.Path)
	if err != nil {
		return nil, err
	}
	table, err := tree.Table(m.From, m.To)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("loaded mappings",
		zap.String("path", m.Path),
		zap.String("from", m.From),
		zap.String("to", m.To),
		zap.Int("classes", table.Classes()))
	return table, nil
}

func (a *app) controller(refresh bool, rec *metrics.Recorder) (*pipeline.Controller, error) {
	store, err := cache.NewStore(a.cfg.CacheDir)
	if err != nil {
		return nil, err
	}
	syms, err := a.symbols()
	if err != nil {
		return nil, err
	}
	in := a.cfg.Inputs
	return pipeline.New(store, pipeline.Options{
		Type:    a.cfg.Type,
		Policy:  a.cfg.Invalidation,
		Refresh: refresh,
		Workers: a.cfg.Workers,
		Inputs: pipeline.Inputs{
			ClientJar:         in.ClientJar,
			ServerJar:         in.ServerJar,
			Patches:           in.Patches,
			AccessTransformer: in.AccessTransformer,
			Universal:         in.Universal,
		},
		Symbols: syms,
		Merger: &jarmerge.Merger{
			SyntheticParamsOffset: a.cfg.Merge.SyntheticParamsOffset,
			DiffMaxBytes:          a.cfg.Merge.DiffMaxBytes,
			Logger:                a.logger,
		},
		Logger:  a.logger,
		Metrics: rec,
	})
}

func (a *app) runCmd() *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline, skipping up-to-date stages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validate.Config(a.cfg); err != nil {
				return fmt.Errorf("invalid config:\n%w", err)
			}
			rec := metrics.New(a.logger)
			c, err := a.controller(refresh, rec)
			if err != nil {
				return err
			}
			res, err := c.Run(cmd.Context())
			if werr := rec.WriteTextfile(a.cfg.Metrics.TextFile); werr != nil && err == nil {
				err = werr
			}
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if res.Invalidated != "" {
				fmt.Fprintf(out, "cache invalidated (%s)\n", res.Invalidated)
			}
			fmt.Fprintf(out, "ran %d stage(s), skipped %d\n", len(res.State.Ran), len(res.State.Skipped))
			fmt.Fprintln(out, res.Final)
			return nil
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "discard every cached artifact first")
	return cmd
}

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show which stages the next run would execute",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.controller(false, nil)
			if err != nil {
				return err
			}
			plan, err := c.Plan()
			if err != nil {
				return err
			}
			writePlan(cmd.OutOrStdout(), plan)
			if inf, err := meta.Detect(c.FinalPath()); err == nil {
				writeInfo(cmd.OutOrStdout(), c.FinalPath(), inf)
			}
			return nil
		},
	}
}

func writePlan(w io.Writer, p *pipeline.Plan) {
	if p.Invalidate != "" {
		fmt.Fprintf(w, "cache will be invalidated (%s)\n", p.Invalidate)
	}
	for _, s := range p.Stages {
		action := "skip"
		if s.Run {
			action = "run"
		}
		state := "present"
		if !s.Present {
			state = "missing"
		}
		fmt.Fprintf(w, "%-22s %-4s %s (%s)\n", s.Name, action, strings.Join(s.Outputs, ", "), state)
	}
}

func writeInfo(w io.Writer, path string, inf meta.Info) {
	fmt.Fprintf(w, "final jar %s\n", path)
	fmt.Fprintf(w, "  pipeline %s, java %s, %d entries, %d classes\n",
		valueOr(inf.Pipeline, "unstamped"), valueOr(inf.JDK, "?"), inf.Entries, inf.Classes)
	if inf.ClientOnly+inf.ServerOnly > 0 {
		fmt.Fprintf(w, "  %d client-only, %d server-only entries\n", inf.ClientOnly, inf.ServerOnly)
	}
}

func valueOr(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func (a *app) cleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove every cached artifact",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := cache.NewStore(a.cfg.CacheDir)
			if err != nil {
				return err
			}
			if err := store.Clear(); err != nil {
				return err
			}
			a.logger.Info("cleared cache", zap.String("dir", store.Dir()))
			return nil
		},
	}
}

func (a *app) remapCmd() *cobra.Command {
	var mappingsPath, from, to, output string
	cmd := &cobra.Command{
		Use:   "remap-at <rules.cfg>",
		Short: "Remap access transformer rules between mapping namespaces",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if mappingsPath == "" {
				mappingsPath = a.cfg.Mappings.Path
			}
			if from == "" {
				from = a.cfg.Mappings.From
			}
			if to == "" {
				to = a.cfg.Mappings.To
			}
			if mappingsPath == "" {
				return fmt.Errorf("--mappings is required when the config has no mappings.path")
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			set, err := atrules.Parse(f)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			if err := validate.Rules(set); err != nil {
				return fmt.Errorf("%s:\n%w", args[0], err)
			}

			tree, err := mapping.Load(mappingsPath)
			if err != nil {
				return err
			}
			table, err := tree.Table(from, to)
			if err != nil {
				return err
			}
			remapped, err := atrules.Remap(set, table)
			if err != nil {
				return err
			}

			if output == "" || output == "-" {
				_, err = remapped.WriteTo(cmd.OutOrStdout())
				return err
			}
			if err := os.WriteFile(output, []byte(remapped.String()), 0o644); err != nil {
				return err
			}
			a.logger.Info("remapped access transformer",
				zap.String("in", args[0]),
				zap.String("out", output),
				zap.Int("rules", remapped.Len()))
			return nil
		},
	}
	cmd.Flags().StringVar(&mappingsPath, "mappings", "", "tiny v2 mappings file (default: config mappings.path)")
	cmd.Flags().StringVar(&from, "from", "", "source namespace (default: config mappings.from)")
	cmd.Flags().StringVar(&to, "to", "", "target namespace (default: config mappings.to)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	return cmd
}
