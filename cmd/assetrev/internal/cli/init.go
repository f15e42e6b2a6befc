package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/assetrev/cmd/assetrev/internal/detect"
	"github.com/albertocavalcante/assetrev/pkg/config"
	"github.com/albertocavalcante/assetrev/pkg/revision"
)

var initFlags struct {
	output string
	check  bool
	dryRun bool
	force  bool
}

// errNotConfigured is returned by init --check when the project has issues.
var errNotConfigured = errors.New("project is not properly configured")

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Create an assetrev.toml for a project",
	Long: `Creates assetrev.toml in the project directory.

This command will:
1. Scan the output root for finished assets
2. Propose one asset class per detected kind (images, icons, fonts,
   scripts, styles), falling back to the defaults when nothing is found
3. Write the configuration with the manifest inside the output root

Use --check to verify configuration without making changes (useful for CI).
Use --dry-run to preview the configuration without writing it.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVar(&initFlags.output, "output", "public/assets/build",
		"Output root producers write into, relative to the project")
	initCmd.Flags().BoolVar(&initFlags.check, "check", false,
		"Check if project is properly configured (exit 1 if not)")
	initCmd.Flags().BoolVar(&initFlags.dryRun, "dry-run", false,
		"Show the configuration without writing it")
	initCmd.Flags().BoolVar(&initFlags.force, "force", false,
		"Overwrite an existing assetrev.toml")

	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	w := cmd.OutOrStdout()
	if initFlags.check {
		return runInitCheck(w, cmd.ErrOrStderr(), absPath)
	}

	cfg, err := proposeConfig(absPath, initFlags.output)
	if err != nil {
		return err
	}

	if initFlags.dryRun {
		data, err := cfg.Encode()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Would create %s:\n\n", filepath.Join(absPath, config.ConfigFileName))
		_, err = w.Write(data)
		return err
	}

	written, err := config.WriteProjectConfig(absPath, cfg, initFlags.force)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Created %s\n", written)

	fmt.Fprintln(w, "\nNext steps:")
	fmt.Fprintln(w, "  1. Review the asset classes in assetrev.toml")
	fmt.Fprintln(w, "  2. Run 'assetrev build' after your producers finish")
	return nil
}

// proposeConfig builds a config for the project at dir with asset classes
// detected under its output root.
func proposeConfig(dir, output string) (*config.Config, error) {
	output = filepath.ToSlash(filepath.Clean(output))

	cfg := config.NewConfig()
	cfg.Output.Root = output
	cfg.Manifest.Path = path.Join(output, "versions.json")

	root := filepath.Join(dir, filepath.FromSlash(output))
	if _, err := os.Stat(root); err == nil {
		classes, err := detect.Classes(root)
		if err != nil {
			return nil, fmt.Errorf("failed to detect assets: %w", err)
		}
		if len(classes) > 0 {
			cfg.Assets = classes
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runInitCheck(w, errW io.Writer, dir string) error {
	var issues []string

	var source string
	for _, p := range config.GetProjectConfigPaths(dir) {
		if fileExists(p) {
			source = p
			break
		}
	}

	if source == "" {
		issues = append(issues, fmt.Sprintf("%s not found in %s", config.ConfigFileName, dir))
	} else if cfg, err := config.LoadFile(source); err != nil {
		issues = append(issues, err.Error())
	} else if err := cfg.Validate(); err != nil {
		issues = append(issues, err.Error())
	} else {
		cfg = cfg.WithBase(dir)
		if store, err := revision.OpenFileStore(cfg.Manifest.Path, cfg.Manifest.Format); err != nil {
			issues = append(issues, err.Error())
		} else if _, err := store.Load(); err != nil {
			issues = append(issues, err.Error())
		}
	}

	if len(issues) > 0 {
		fmt.Fprintln(errW, "Project configuration issues:")
		for _, issue := range issues {
			fmt.Fprintf(errW, "  - %s\n", issue)
		}
		fmt.Fprintln(errW, "\nRun 'assetrev init' to fix")
		return errNotConfigured
	}

	fmt.Fprintln(w, "Project is properly configured")
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
