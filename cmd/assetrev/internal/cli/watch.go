package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/assetrev/cmd/assetrev/internal/kinds"
	"github.com/albertocavalcante/assetrev/cmd/assetrev/internal/watch"
)

var watchFlags struct {
	debounce int
	kinds    []string
	verbose  bool
	json     bool
	noColor  bool
	build    bool
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the output root and rebuild the manifest on changes",
	Long: `Watches the output root for files written by producers and runs a
build whenever matching assets appear or change. Revisioned files the
build itself writes are ignored.

Example output:

  $ assetrev watch

  assetrev: watching public/assets/build
  assetrev: classes: scripts, styles
  assetrev: ready

  [14:32:15] ~ js/app.js
  [14:32:15] building 1 change...
  [14:32:15] ✓ 1 updated, 1 deleted (12ms)

Press Ctrl+C to stop watching.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().IntVar(&watchFlags.debounce, "debounce", 0,
		"Debounce window in milliseconds (default from config)")
	watchCmd.Flags().StringSliceVar(&watchFlags.kinds, "kinds", nil,
		"Only rebuild for these asset kinds (comma-separated: "+strings.Join(kinds.Order, ", ")+")")
	watchCmd.Flags().BoolVar(&watchFlags.verbose, "verbose", false,
		"Show file-level changes")
	watchCmd.Flags().BoolVar(&watchFlags.json, "json", false,
		"Stream JSON events (for tooling integration)")
	watchCmd.Flags().BoolVar(&watchFlags.noColor, "no-color", false,
		"Disable colored output")
	watchCmd.Flags().BoolVar(&watchFlags.build, "build", false,
		"Run one build before watching")

	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	for _, k := range watchFlags.kinds {
		if _, ok := kinds.Extensions[k]; !ok {
			return fmt.Errorf("unknown asset kind %q (known: %s)", k, strings.Join(kinds.Order, ", "))
		}
	}

	p, err := loadProject(nil)
	if err != nil {
		return err
	}
	builder, err := newBuilder(p)
	if err != nil {
		return err
	}

	debounce := p.cfg.Watch.Debounce
	if cmd.Flags().Changed("debounce") {
		debounce = watchFlags.debounce
	}

	// SIGHUP covers a closed terminal.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer cancel()

	w, err := watch.New(watch.Config{
		Builder:      builder,
		Kinds:        watchFlags.kinds,
		Debounce:     time.Duration(debounce) * time.Millisecond,
		BuildOnStart: watchFlags.build,
		Writer:       cmd.OutOrStdout(),
		Verbose:      watchFlags.verbose,
		NoColor:      watchFlags.noColor,
		JSON:         watchFlags.json,
	})
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	return w.Run(ctx)
}
