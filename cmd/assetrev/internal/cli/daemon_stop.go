package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/assetrev/cmd/assetrev/internal/daemon"
)

var daemonStopFlags struct {
	force bool
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running daemon",
	Long: `Stop the assetrev daemon for the current project.

By default, sends a graceful shutdown request via the socket.
If the daemon doesn't exit within 5 seconds, use --force to
send SIGKILL.

Examples:
  assetrev daemon stop         # Graceful shutdown
  assetrev daemon stop --force # Force kill if graceful fails`,
	Args: cobra.NoArgs,
	RunE: runDaemonStop,
}

func init() {
	daemonStopCmd.Flags().BoolVar(&daemonStopFlags.force, "force", false,
		"Force kill if graceful shutdown fails")

	daemonCmd.AddCommand(daemonStopCmd)
}

func runDaemonStop(cmd *cobra.Command, args []string) error {
	_, paths, err := daemonPaths()
	if err != nil {
		return err
	}
	return stopDaemon(cmd.OutOrStdout(), paths, daemonStopFlags.force)
}

// stopDaemon stops the daemon behind paths, if any.
func stopDaemon(w io.Writer, paths *daemon.Paths, force bool) error {
	status := daemon.GetStatus(paths)

	if status.Stale {
		fmt.Fprintln(w, "Daemon not running (cleaning up stale files)")
		_ = paths.Cleanup()
		return nil
	}
	if !status.Running {
		fmt.Fprintln(w, "Daemon not running")
		return nil
	}

	fmt.Fprintf(w, "Stopping daemon (PID: %d)...\n", status.PID)

	if err := tryGracefulShutdown(paths); err == nil {
		if daemon.WaitForExit(status.PID, 5*time.Second) {
			fmt.Fprintln(w, "Daemon stopped")
			return nil
		}
	} else if force {
		_ = daemon.StopProcess(status.PID)
		if daemon.WaitForExit(status.PID, 2*time.Second) {
			fmt.Fprintln(w, "Daemon stopped")
			_ = paths.Cleanup()
			return nil
		}
	}

	if !force {
		fmt.Fprintln(w, "Graceful shutdown timed out. Use --force to kill.")
		return fmt.Errorf("shutdown timed out")
	}

	fmt.Fprintln(w, "Forcing shutdown...")
	if err := daemon.KillProcess(status.PID); err != nil {
		// The process may have exited between checks.
		if !daemon.IsProcessRunning(status.PID) {
			fmt.Fprintln(w, "Daemon stopped")
			_ = paths.Cleanup()
			return nil
		}
		return fmt.Errorf("failed to kill daemon: %w", err)
	}

	if daemon.WaitForExit(status.PID, 2*time.Second) {
		fmt.Fprintln(w, "Daemon stopped (forced)")
		_ = paths.Cleanup()
		return nil
	}
	return fmt.Errorf("failed to stop daemon")
}

// tryGracefulShutdown asks the daemon to stop via RPC.
func tryGracefulShutdown(paths *daemon.Paths) error {
	client, err := daemon.Connect(paths.Socket)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	_, err = client.Shutdown()
	return err
}
