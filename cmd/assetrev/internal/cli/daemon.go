package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/assetrev/cmd/assetrev/internal/daemon"
)

// daemonCmd is the parent command for daemon operations.
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the assetrev daemon",
	Long: `Manage the per-project assetrev background daemon.

The daemon keeps the resolve pipeline warm, serves lookups over a Unix
socket in .assetrev/, and can watch the output root and rebuild when
producers write new files. Multiple clients (templates, dev servers,
editors) can connect to a single daemon instance.

Commands:
  start   - Start the daemon process
  stop    - Stop the running daemon
  status  - Show daemon status
  restart - Restart the daemon

Examples:
  assetrev daemon start              # Start daemon in background
  assetrev daemon start --foreground # Run daemon in foreground (for debugging)
  assetrev daemon status             # Check if daemon is running
  assetrev daemon stop               # Stop the daemon`,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}

// daemonPaths returns the daemon file paths for the current project.
func daemonPaths() (*project, *daemon.Paths, error) {
	p, err := loadProject(nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load project: %w", err)
	}
	return p, daemon.ProjectPaths(p.dir), nil
}
