package daemon

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/albertocavalcante/assetrev/pkg/config"
)

// DaemonDirName is the per-project directory holding daemon files. It is
// shared with project configuration.
const DaemonDirName = config.ConfigDirName

// File names inside DaemonDirName.
const (
	SocketName = "daemon.sock"
	PIDName    = "daemon.pid"
	LogName    = "daemon.log"
)

// Paths holds the paths for daemon files.
type Paths struct {
	Dir    string // directory containing daemon files
	Socket string // unix socket path
	PID    string // PID file path
	Log    string // log file path
}

// ProjectPaths returns daemon file paths for the project rooted at root.
func ProjectPaths(root string) *Paths {
	return PathsIn(filepath.Join(root, DaemonDirName))
}

// PathsIn returns daemon file paths inside dir.
func PathsIn(dir string) *Paths {
	return &Paths{
		Dir:    dir,
		Socket: filepath.Join(dir, SocketName),
		PID:    filepath.Join(dir, PIDName),
		Log:    filepath.Join(dir, LogName),
	}
}

// EnsureDir ensures the daemon directory exists with owner-only access.
func (p *Paths) EnsureDir() error {
	return os.MkdirAll(p.Dir, 0o700)
}

// WritePID writes the current process ID to the PID file.
func (p *Paths) WritePID() error {
	if err := p.EnsureDir(); err != nil {
		return err
	}
	return os.WriteFile(p.PID, []byte(strconv.Itoa(os.Getpid())), 0o600)
}

// ReadPID reads the process ID from the PID file.
func (p *Paths) ReadPID() (int, error) {
	data, err := os.ReadFile(p.PID)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file contents: %w", err)
	}
	return pid, nil
}

// RemovePID removes the PID file.
func (p *Paths) RemovePID() error {
	return os.Remove(p.PID)
}

// RemoveSocket removes the socket file.
func (p *Paths) RemoveSocket() error {
	return os.Remove(p.Socket)
}

// Cleanup removes the PID file and socket. Missing files are ignored.
func (p *Paths) Cleanup() error {
	var errs []error
	if err := p.RemovePID(); err != nil && !os.IsNotExist(err) {
		errs = append(errs, fmt.Errorf("failed to remove PID file: %w", err))
	}
	if err := p.RemoveSocket(); err != nil && !os.IsNotExist(err) {
		errs = append(errs, fmt.Errorf("failed to remove socket: %w", err))
	}
	return errors.Join(errs...)
}

// IsProcessRunning checks if a process with the given PID is running.
func IsProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// FindProcess always succeeds on Unix; signal 0 probes for existence.
	err = process.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

// IsSocketAlive reports whether something accepts connections on socket.
func IsSocketAlive(socket string) bool {
	conn, err := net.DialTimeout("unix", socket, 200*time.Millisecond)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// DaemonStatus represents the current status of the daemon.
type DaemonStatus struct {
	Running    bool
	PID        int
	SocketPath string
	Stale      bool // PID file exists but the process is gone
}

// GetStatus returns the current daemon status. A nil paths reports a
// daemon that is not running.
func GetStatus(paths *Paths) *DaemonStatus {
	if paths == nil {
		return &DaemonStatus{}
	}

	status := &DaemonStatus{SocketPath: paths.Socket}

	pid, err := paths.ReadPID()
	if err != nil {
		return status
	}
	status.PID = pid

	if IsProcessRunning(pid) {
		status.Running = true
	} else {
		status.Stale = true
	}
	return status
}

// CleanupStale removes daemon files left by a daemon that is no longer
// running and reports whether anything was removed.
func CleanupStale(paths *Paths) (bool, error) {
	if paths == nil {
		return false, nil
	}
	status := GetStatus(paths)
	if status.Running {
		return false, nil
	}

	if !status.Stale && status.PID == 0 {
		// No PID file; a socket alone is an orphan unless it answers.
		if _, err := os.Stat(paths.Socket); err == nil && !IsSocketAlive(paths.Socket) {
			if err := paths.RemoveSocket(); err != nil {
				return false, fmt.Errorf("failed to remove orphan socket: %w", err)
			}
			return true, nil
		}
		return false, nil
	}

	if err := paths.Cleanup(); err != nil {
		return false, err
	}
	return true, nil
}

// StopProcess asks a process to terminate.
func StopProcess(pid int) error {
	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process %d: %w", pid, err)
	}
	return process.Signal(syscall.SIGTERM)
}

// KillProcess forcibly terminates a process.
func KillProcess(pid int) error {
	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process %d: %w", pid, err)
	}
	return process.Kill()
}

// WaitForExit polls until pid exits or timeout elapses and reports
// whether the process exited.
func WaitForExit(pid int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !IsProcessRunning(pid) {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return !IsProcessRunning(pid)
}
