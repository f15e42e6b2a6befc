package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/assetrev/cmd/assetrev/internal/daemon"
	"github.com/albertocavalcante/assetrev/internal/log"
	"github.com/albertocavalcante/assetrev/pkg/resolve"
)

var resolveFlags struct {
	json    bool
	daemon  bool
	verbose bool
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <name>...",
	Short: "Print the URL for logical asset names",
	Long: `Resolves each logical asset name through the configured pipeline
(manifest, then querystring, then passthrough by default) and prints
the resulting URL, one per line.

With --daemon the lookup is served by the running project daemon, which
keeps the manifest cached; without a daemon the command falls back to
resolving locally.

Exits non-zero if any name could not be resolved.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().BoolVar(&resolveFlags.json, "json", false,
		"Output as JSON")
	resolveCmd.Flags().BoolVar(&resolveFlags.daemon, "daemon", false,
		"Resolve through the running daemon when available")
	resolveCmd.Flags().BoolVar(&resolveFlags.verbose, "verbose", false,
		"Show which strategy answered each name")

	rootCmd.AddCommand(resolveCmd)
}

// ResolveOutput is the JSON output format for assetrev resolve.
type ResolveOutput struct {
	Resolved   []resolve.Resolution `json:"resolved"`
	Unresolved []string             `json:"unresolved,omitempty"`
	Errors     map[string]string    `json:"errors,omitempty"`
}

func runResolve(cmd *cobra.Command, args []string) error {
	p, err := loadProject(nil)
	if err != nil {
		return err
	}

	var output *ResolveOutput
	if resolveFlags.daemon {
		output, err = resolveViaDaemon(p, args)
		if errors.Is(err, daemon.ErrDaemonNotRunning) {
			log.Info("daemon not running, resolving locally", "project", p.dir)
			output, err = nil, nil
		} else if err != nil {
			return err
		}
	}
	if output == nil {
		output, err = resolveLocally(p, args)
		if err != nil {
			return err
		}
	}

	w := cmd.OutOrStdout()
	if resolveFlags.json {
		if err := outputJSON(w, output); err != nil {
			return err
		}
	} else {
		printResolveOutput(w, output, resolveFlags.verbose)
	}

	if n := len(args) - len(output.Resolved); n > 0 {
		return fmt.Errorf("%d of %d names could not be resolved", n, len(args))
	}
	return nil
}

func resolveLocally(p *project, names []string) (*ResolveOutput, error) {
	pipeline, err := resolve.FromConfig(p.cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := signalContext()
	defer cancel()

	output := &ResolveOutput{}
	for _, name := range names {
		r, err := pipeline.ResolveDetailed(ctx, name)
		switch {
		case err == nil:
			output.Resolved = append(output.Resolved, r)
		case errors.Is(err, resolve.ErrNotResolved):
			output.Unresolved = append(output.Unresolved, name)
		default:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if output.Errors == nil {
				output.Errors = make(map[string]string)
			}
			output.Errors[name] = err.Error()
		}
	}
	return output, nil
}

func resolveViaDaemon(p *project, names []string) (*ResolveOutput, error) {
	client, err := daemon.ConnectProject(p.dir)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Close() }()

	res, err := client.Resolve(names...)
	if err != nil {
		return nil, fmt.Errorf("daemon resolve failed: %w", err)
	}

	// The daemon reports every failure as unresolved and records why.
	output := &ResolveOutput{Unresolved: res.Unresolved}
	for name, msg := range res.Errors {
		if !strings.Contains(msg, resolve.ErrNotResolved.Error()) {
			if output.Errors == nil {
				output.Errors = make(map[string]string)
			}
			output.Errors[name] = msg
		}
	}
	for _, name := range names {
		u, ok := res.URLs[name]
		if !ok {
			continue
		}
		output.Resolved = append(output.Resolved, resolve.Resolution{
			Logical:  name,
			URL:      u,
			Strategy: res.Strategies[name],
		})
	}
	return output, nil
}

func printResolveOutput(w io.Writer, output *ResolveOutput, verbose bool) {
	for _, r := range output.Resolved {
		if verbose {
			fmt.Fprintf(w, "%s\t%s\t(%s)\n", r.Logical, r.URL, r.Strategy)
			continue
		}
		fmt.Fprintln(w, r.URL)
	}
	for _, name := range output.Unresolved {
		if _, ok := output.Errors[name]; ok {
			continue
		}
		log.Warn("could not resolve asset", "name", name)
	}
	for name, msg := range output.Errors {
		log.Warn("invalid asset name", "name", name, "error", msg)
	}
}
