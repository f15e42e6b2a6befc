package cli

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/assetrev/cmd/assetrev/internal/daemon"
	"github.com/albertocavalcante/assetrev/internal/log"
)

// startTimeout bounds how long a background start waits for the socket.
const startTimeout = 5 * time.Second

var daemonStartFlags struct {
	foreground bool
	logFile    string
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon process",
	Long: `Start the assetrev daemon for the current project.

By default, the daemon runs in the background. Use --foreground to run
in the foreground for debugging.

The daemon listens on .assetrev/daemon.sock in the project directory.
Multiple clients can connect simultaneously.

Examples:
  assetrev daemon start              # Start in background
  assetrev daemon start --foreground # Run in foreground (Ctrl+C to stop)
  assetrev daemon start --root web   # Start for another project`,
	Args: cobra.NoArgs,
	RunE: runDaemonStart,
}

func init() {
	daemonStartCmd.Flags().BoolVar(&daemonStartFlags.foreground, "foreground", false,
		"Run in foreground (don't daemonize)")
	daemonStartCmd.Flags().StringVar(&daemonStartFlags.logFile, "log", "",
		"Log file path (default: .assetrev/daemon.log)")

	daemonCmd.AddCommand(daemonStartCmd)
}

func runDaemonStart(cmd *cobra.Command, args []string) error {
	p, paths, err := daemonPaths()
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()

	status := daemon.GetStatus(paths)
	if status.Running && daemon.IsSocketAlive(paths.Socket) {
		fmt.Fprintf(w, "Daemon already running (PID: %d)\n", status.PID)
		return nil
	}

	if status.Stale {
		if _, err := daemon.CleanupStale(paths); err != nil {
			log.Warn("failed to clean up stale files", "error", err)
		}
	}

	if daemonStartFlags.foreground {
		return runDaemonForeground(w, p, paths)
	}
	return runDaemonBackground(w, p, paths)
}

// runDaemonForeground runs the daemon until it is stopped.
func runDaemonForeground(w io.Writer, p *project, paths *daemon.Paths) error {
	hc, err := daemon.NewHandlerConfig(p.cfg)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Starting daemon in foreground (PID: %d)\n", os.Getpid())
	fmt.Fprintf(w, "Project: %s\n", p.dir)
	fmt.Fprintf(w, "Socket: %s\n", paths.Socket)
	fmt.Fprintln(w, "Press Ctrl+C to stop")
	fmt.Fprintln(w)

	server := daemon.NewServer(daemon.ServerConfig{
		Paths:   paths,
		Version: Version,
		Handler: daemon.NewHandler(nil, hc),
	})

	ctx, cancel := signalContext()
	defer cancel()
	return server.Start(ctx)
}

// runDaemonBackground re-executes this binary in foreground mode, detached
// from the terminal, and waits for its socket to accept connections.
func runDaemonBackground(w io.Writer, p *project, paths *daemon.Paths) error {
	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	args := []string{
		"daemon", "start", "--foreground",
		"--root", p.dir,
		"--verbosity", strconv.Itoa(globalFlags.verbosity),
		"--log-format", globalFlags.logFormat,
	}
	if globalFlags.configPath != "" {
		args = append(args, "--config", globalFlags.configPath)
	}

	if err := paths.EnsureDir(); err != nil {
		return fmt.Errorf("failed to create daemon directory: %w", err)
	}

	logPath := paths.Log
	if daemonStartFlags.logFile != "" {
		logPath = daemonStartFlags.logFile
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	proc := exec.Command(executable, args...)
	proc.Dir = p.dir
	proc.Stdout = logFile
	proc.Stderr = logFile
	proc.Stdin = nil
	proc.SysProcAttr = daemonSysProcAttr()

	if err := proc.Start(); err != nil {
		_ = logFile.Close()
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	_ = logFile.Close()
	_ = proc.Process.Release()

	if !waitForDaemon(paths, startTimeout) {
		return fmt.Errorf("daemon failed to start (check %s for details)", logPath)
	}

	status := daemon.GetStatus(paths)
	fmt.Fprintf(w, "Daemon started (PID: %d)\n", status.PID)
	fmt.Fprintf(w, "Socket: %s\n", paths.Socket)
	fmt.Fprintf(w, "Log: %s\n", logPath)
	return nil
}

// waitForDaemon polls until the daemon's PID is live and its socket
// accepts connections.
func waitForDaemon(paths *daemon.Paths, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if daemon.GetStatus(paths).Running && daemon.IsSocketAlive(paths.Socket) {
			return true
		}
		time.Sleep(100 * time.Millisecond)
	}
	return false
}
