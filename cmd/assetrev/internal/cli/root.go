// Package cli implements the assetrev command-line interface.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/assetrev/internal/log"
	"github.com/albertocavalcante/assetrev/pkg/config"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	GitCommit = "unknown"
)

// globalFlags holds persistent flags that apply to all commands
var globalFlags struct {
	verbosity  int
	logFormat  string
	configPath string
	root       string
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "assetrev",
	Short: "Revision static assets and resolve their URLs",
	Long: `Assetrev fingerprints finished static assets, renames them to
content-addressed paths, and keeps a manifest that maps each logical
name to its current revisioned file.

Producers (style compilers, bundlers, image optimizers) write into the
output root; 'assetrev build' revisions what they wrote, and templates
resolve names through the manifest with 'assetrev resolve' or the daemon.`,
	SilenceUsage: true,
	// Default behavior: show help
	Run: func(cmd *cobra.Command, _ []string) {
		_ = cmd.Help()
	},
}

// versionCmd shows version information
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "assetrev %s (%s)\n", Version, GitCommit)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)

	// Global flags (persistent across all commands)
	rootCmd.PersistentFlags().IntVarP(&globalFlags.verbosity, "verbosity", "v", 1,
		"Verbosity level (0=error, 1=warn, 2=info, 3=debug, 4=trace)")
	rootCmd.PersistentFlags().StringVar(&globalFlags.logFormat, "log-format", "text",
		"Log format (text, json)")
	rootCmd.PersistentFlags().StringVar(&globalFlags.configPath, "config", "",
		"Config file (skips global and project config discovery)")
	rootCmd.PersistentFlags().StringVar(&globalFlags.root, "root", "",
		"Project directory (default: current directory)")

	// Hook to apply flags before command runs
	cobra.OnInitialize(initLogging)
}

// initLogging applies CLI flags to the logger.
// This runs after flags are parsed but before command execution.
func initLogging() {
	format, err := log.ParseFormat(globalFlags.logFormat)
	log.Init(globalFlags.verbosity, format)
	if err != nil {
		log.Warn("falling back to text logs", "error", err)
	}
}

// project is a loaded configuration whose relative paths are anchored at
// the project directory.
type project struct {
	dir string
	cfg *config.Config
}

// loadProject loads configuration for the current invocation. adjust, when
// set, applies command flag overrides before validation.
func loadProject(adjust func(*config.Config)) (*project, error) {
	start := globalFlags.root
	if start == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		start = wd
	}
	start, err := filepath.Abs(start)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project directory: %w", err)
	}

	var (
		cfg *config.Config
		dir string
	)
	if globalFlags.configPath != "" {
		path, err := filepath.Abs(globalFlags.configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config path: %w", err)
		}
		cfg, err = config.LoadFile(path)
		if err != nil {
			return nil, err
		}
		dir = configBase(path)
	} else {
		cfg, err = config.LoadFrom(start)
		if err != nil {
			return nil, err
		}
		dir = config.ProjectRoot(start)
	}

	if adjust != nil {
		adjust(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.SetBase(dir)
	log.Debug("configuration loaded", "project", dir, "source", cfg.Source)
	return &project{dir: dir, cfg: cfg.WithBase(dir)}, nil
}

// configBase returns the directory an explicit config file anchors paths
// at: its own directory, or the project above a .assetrev directory.
func configBase(path string) string {
	dir := filepath.Dir(path)
	if filepath.Base(dir) == config.ConfigDirName {
		return filepath.Dir(dir)
	}
	return dir
}

// signalContext returns a context cancelled on interrupt or termination.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// RootCmd returns the root command for testing.
func RootCmd() *cobra.Command {
	return rootCmd
}
