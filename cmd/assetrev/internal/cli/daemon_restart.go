package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var daemonRestartFlags struct {
	force bool
}

var daemonRestartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the daemon",
	Long: `Restart the assetrev daemon.

This is equivalent to running 'assetrev daemon stop' followed by
'assetrev daemon start'. Use it after editing assetrev.toml; the
daemon reads configuration only when it starts.

Examples:
  assetrev daemon restart         # Restart the daemon
  assetrev daemon restart --force # Force restart if graceful stop fails`,
	Args: cobra.NoArgs,
	RunE: runDaemonRestart,
}

func init() {
	daemonRestartCmd.Flags().BoolVar(&daemonRestartFlags.force, "force", false,
		"Force kill if graceful shutdown fails")

	daemonCmd.AddCommand(daemonRestartCmd)
}

func runDaemonRestart(cmd *cobra.Command, args []string) error {
	p, paths, err := daemonPaths()
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if err := stopDaemon(w, paths, daemonRestartFlags.force); err != nil {
		return err
	}

	time.Sleep(200 * time.Millisecond)

	fmt.Fprintln(w, "Starting daemon...")
	return runDaemonBackground(w, p, paths)
}
