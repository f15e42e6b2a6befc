package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/assetrev/cmd/assetrev/internal/daemon"
)

var daemonStatusFlags struct {
	jsonOutput bool
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long: `Show the status of the assetrev daemon for the current project.

Displays whether the daemon is running, its PID, socket path,
uptime, and watch status.

Examples:
  assetrev daemon status        # Show status as text
  assetrev daemon status --json # Show status as JSON`,
	Args: cobra.NoArgs,
	RunE: runDaemonStatus,
}

func init() {
	daemonStatusCmd.Flags().BoolVar(&daemonStatusFlags.jsonOutput, "json", false,
		"Output as JSON")

	daemonCmd.AddCommand(daemonStatusCmd)
}

// DaemonStatusOutput is the JSON output format for daemon status.
type DaemonStatusOutput struct {
	Running    bool     `json:"running"`
	PID        int      `json:"pid,omitempty"`
	SocketPath string   `json:"socket_path"`
	Root       string   `json:"root,omitempty"`
	Version    string   `json:"version,omitempty"`
	Uptime     string   `json:"uptime,omitempty"`
	StartTime  string   `json:"start_time,omitempty"`
	Watching   bool     `json:"watching"`
	WatchRoot  string   `json:"watch_root,omitempty"`
	WatchKinds []string `json:"watch_kinds,omitempty"`
	Builds     int      `json:"builds,omitempty"`
	Errors     int      `json:"errors,omitempty"`
	LastBuild  string   `json:"last_build,omitempty"`
	Error      string   `json:"error,omitempty"`
}

func runDaemonStatus(cmd *cobra.Command, args []string) error {
	_, paths, err := daemonPaths()
	if err != nil {
		return err
	}

	status := daemon.GetStatus(paths)
	output := DaemonStatusOutput{
		Running:    status.Running,
		PID:        status.PID,
		SocketPath: paths.Socket,
	}

	if status.Running {
		if err := enrichStatusFromDaemon(paths, &output); err != nil {
			output.Error = err.Error()
		}
	} else if status.Stale {
		output.Error = "stale PID file (daemon crashed)"
	}

	w := cmd.OutOrStdout()
	if daemonStatusFlags.jsonOutput {
		return outputJSON(w, output)
	}
	outputDaemonStatusText(w, output, status)
	return nil
}

// enrichStatusFromDaemon connects to the daemon to get detailed status.
func enrichStatusFromDaemon(paths *daemon.Paths, output *DaemonStatusOutput) error {
	client, err := daemon.Connect(paths.Socket)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer func() { _ = client.Close() }()

	ping, err := client.Ping()
	if err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	output.Version = ping.Version
	output.Uptime = ping.Uptime
	output.StartTime = ping.StartTime
	output.Root = ping.Root

	watchStatus, err := client.WatchStatus()
	if err != nil {
		return fmt.Errorf("watch status failed: %w", err)
	}
	output.Watching = watchStatus.Watching
	output.WatchRoot = watchStatus.Root
	output.WatchKinds = watchStatus.Kinds
	output.Builds = watchStatus.Builds
	output.Errors = watchStatus.Errors
	output.LastBuild = watchStatus.LastBuild
	return nil
}

// outputDaemonStatusText prints status as human-readable text.
func outputDaemonStatusText(w io.Writer, output DaemonStatusOutput, status *daemon.DaemonStatus) {
	if !output.Running {
		fmt.Fprintln(w, "Daemon: not running")
		if status.Stale {
			fmt.Fprintf(w, "  (stale PID file found for PID %d)\n", status.PID)
			fmt.Fprintln(w, "  Run 'assetrev daemon start' to start the daemon")
		}
		return
	}

	fmt.Fprintf(w, "Daemon: running (PID: %d)\n", output.PID)
	fmt.Fprintf(w, "Socket: %s\n", output.SocketPath)
	if output.Root != "" {
		fmt.Fprintf(w, "Output root: %s\n", output.Root)
	}
	if output.Version != "" {
		fmt.Fprintf(w, "Version: %s\n", output.Version)
	}
	if output.Uptime != "" {
		fmt.Fprintf(w, "Uptime: %s\n", formatUptime(output.Uptime))
	}

	if output.Watching {
		fmt.Fprintln(w, "Watching: yes")
		if len(output.WatchKinds) > 0 {
			fmt.Fprintln(w, "  Kinds:")
			for _, k := range output.WatchKinds {
				fmt.Fprintf(w, "    - %s\n", k)
			}
		}
		fmt.Fprintf(w, "  Builds: %d (%d failed)\n", output.Builds, output.Errors)
		if output.LastBuild != "" {
			fmt.Fprintf(w, "  Last build: %s\n", output.LastBuild)
		}
	} else {
		fmt.Fprintln(w, "Watching: no")
	}

	if output.Error != "" {
		fmt.Fprintf(w, "Warning: %s\n", output.Error)
	}
}

// formatUptime formats the uptime string for display.
func formatUptime(uptime string) string {
	d, err := time.ParseDuration(uptime)
	if err != nil {
		return uptime
	}

	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, hours)
}
