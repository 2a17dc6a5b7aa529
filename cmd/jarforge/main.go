// Package main provides the jarforge CLI. It builds a patched, access
// transformed and side-merged jar from clean client/server jars and a binary
// patch set, caching every stage artifact so repeated runs redo only what was
// invalidated.
//
// Commands:
//   - run      : execute the pipeline (jarforge run [--refresh])
//   - status   : show what the next run would do
//   - clean    : remove every cached artifact
//   - remap-at : remap an access transformer file between namespaces
//   - version  : print version information
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jarforge/internal/config"
	"jarforge/internal/logging"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// app carries state shared by all commands of one invocation.
type app struct {
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "jarforge",
		Short: "Build patched jars with a stage cache",
		Long: `jarforge derives a runnable patched jar from clean client and server jars,
a binary patch set and an access transformer file.

Every intermediate artifact is kept in the cache directory. A run skips the
stages whose artifacts are present and redoes everything after the first one
that had to run.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "jarforge.yaml", "path to the config file")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		a.runCmd(),
		a.statusCmd(),
		a.cleanCmd(),
		a.remapCmd(),
		versionCmd(),
	)
	return root
}

// setup loads .env, the config file and the logger.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	// A missing .env is fine; the file is a convenience.
	_ = godotenv.Load()

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Logging, a.verbose)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.cfg = cfg
	a.logger = logger
	a.logger.Debug("loaded config",
		zap.String("path", a.configPath),
		zap.String("cache_dir", cfg.CacheDir),
		zap.String("type", cfg.Type))
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "jarforge %s (pipeline %s)\n", version, pipelineVersion())
			return nil
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		stop()
		os.Exit(1)
	}
}
