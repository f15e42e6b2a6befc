package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/assetrev/cmd/assetrev/internal/build"
	"github.com/albertocavalcante/assetrev/cmd/assetrev/internal/runner"
	"github.com/albertocavalcante/assetrev/pkg/config"
)

var buildFlags struct {
	parallel     bool
	noPrune      bool
	keepOriginal bool
	onCorrupt    string
	strict       bool
	skipBefore   bool
	verbose      bool
	json         bool
}

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Revision assets and update the manifest",
	Long: `Runs the configured producer commands, then fingerprints every asset
matched by the configured classes, renames each to its revisioned path,
merges the mappings into the manifest, and deletes superseded files.

Entries for assets that were not produced this time are kept. Use
'assetrev retire' to remove an entry.

The build fails without touching the manifest when the manifest is
corrupt (unless --on-corrupt=reset), when it cannot be saved, or with
--strict when any asset fails.`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().BoolVar(&buildFlags.parallel, "parallel", false,
		"Process independent asset classes concurrently")
	buildCmd.Flags().BoolVar(&buildFlags.noPrune, "no-prune", false,
		"Keep superseded revisioned files")
	buildCmd.Flags().BoolVar(&buildFlags.keepOriginal, "keep-original", false,
		"Keep unrevisioned files next to their revisioned copies")
	buildCmd.Flags().StringVar(&buildFlags.onCorrupt, "on-corrupt", "",
		"Corrupt manifest policy: abort or reset (default from config)")
	buildCmd.Flags().BoolVar(&buildFlags.strict, "strict", false,
		"Fail the build if any asset fails")
	buildCmd.Flags().BoolVar(&buildFlags.skipBefore, "skip-before", false,
		"Do not run the configured producer commands")
	buildCmd.Flags().BoolVar(&buildFlags.verbose, "verbose", false,
		"List every revisioned asset")
	buildCmd.Flags().BoolVar(&buildFlags.json, "json", false,
		"Output the build result as JSON")

	rootCmd.AddCommand(buildCmd)
}

// applyBuildFlags overrides config values with the flags that were set.
func applyBuildFlags(cmd *cobra.Command) func(*config.Config) {
	return func(cfg *config.Config) {
		flags := cmd.Flags()
		if flags.Changed("parallel") {
			cfg.Build.Parallel = &buildFlags.parallel
		}
		if flags.Changed("no-prune") {
			prune := !buildFlags.noPrune
			cfg.Build.Prune = &prune
		}
		if flags.Changed("keep-original") {
			cfg.Output.KeepOriginal = &buildFlags.keepOriginal
		}
		if flags.Changed("on-corrupt") {
			cfg.Manifest.OnCorrupt = buildFlags.onCorrupt
		}
		if flags.Changed("strict") {
			cfg.Build.Strict = &buildFlags.strict
		}
	}
}

func runBuild(cmd *cobra.Command, args []string) error {
	p, err := loadProject(applyBuildFlags(cmd))
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	if !buildFlags.skipBefore && len(p.cfg.Build.Before) > 0 {
		r := runner.New(
			runner.WithDir(p.dir),
			runner.WithOutput(cmd.ErrOrStderr(), cmd.ErrOrStderr()),
		)
		if err := r.RunAll(ctx, p.cfg.Build.Before); err != nil {
			return fmt.Errorf("producer failed: %w", err)
		}
	}

	builder, err := newBuilder(p)
	if err != nil {
		return err
	}

	res, err := builder.Run(ctx)
	if err != nil {
		return err
	}

	if buildFlags.json {
		return outputJSON(cmd.OutOrStdout(), res)
	}
	printBuildResult(cmd.OutOrStdout(), res, buildFlags.verbose)
	return nil
}

// newBuilder creates a builder for the project's configuration.
func newBuilder(p *project) (*build.Builder, error) {
	opts, err := build.OptionsFromConfig(p.cfg)
	if err != nil {
		return nil, err
	}
	return build.New(opts)
}

func printBuildResult(w io.Writer, res *build.Result, verbose bool) {
	if res.Reset {
		fmt.Fprintln(w, "Corrupt manifest discarded; rebuilt from scratch")
	}

	if verbose {
		for _, a := range res.Succeeded() {
			fmt.Fprintf(w, "  %s -> %s\n", a.Logical, a.Physical)
		}
	}
	for _, f := range res.Failed {
		fmt.Fprintf(w, "  ! %v\n", f)
	}
	for _, f := range res.DeleteErrors {
		fmt.Fprintf(w, "  ! %v\n", f)
	}

	fmt.Fprintf(w, "%d added, %d updated, %d unchanged, %d deleted",
		len(res.Changes.Added), len(res.Changes.Updated),
		len(res.Changes.Unchanged), len(res.Deleted))
	if len(res.Failed) > 0 {
		fmt.Fprintf(w, ", %d failed", len(res.Failed))
	}
	fmt.Fprintf(w, " (%s)\n", res.Duration.Round(time.Millisecond))

	if !res.Saved {
		fmt.Fprintln(w, "Manifest unchanged")
	}
}
