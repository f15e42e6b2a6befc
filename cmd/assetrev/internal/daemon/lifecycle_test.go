package daemon

import (
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"
)

// shortTempDir creates a short temp directory for unix socket tests.
// Socket paths are limited to ~104 bytes on macOS.
func shortTempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", "ar")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func TestProjectPaths(t *testing.T) {
	t.Parallel()
	paths := ProjectPaths("/srv/site")

	want := filepath.Join("/srv/site", ".assetrev")
	if paths.Dir != want {
		t.Errorf("Dir = %q, want %q", paths.Dir, want)
	}
	if paths.Socket != filepath.Join(want, "daemon.sock") {
		t.Errorf("Socket = %q", paths.Socket)
	}
	if paths.PID != filepath.Join(want, "daemon.pid") {
		t.Errorf("PID = %q", paths.PID)
	}
	if paths.Log != filepath.Join(want, "daemon.log") {
		t.Errorf("Log = %q", paths.Log)
	}
}

func TestPaths_EnsureDir(t *testing.T) {
	t.Parallel()
	paths := PathsIn(filepath.Join(t.TempDir(), "nested", ".assetrev"))

	if err := paths.EnsureDir(); err != nil {
		t.Fatalf("EnsureDir() error = %v", err)
	}
	info, err := os.Stat(paths.Dir)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if !info.IsDir() {
		t.Error("expected a directory")
	}
	if perm := info.Mode().Perm(); perm != 0o700 {
		t.Errorf("permissions = %o, want 700", perm)
	}

	// Idempotent.
	if err := paths.EnsureDir(); err != nil {
		t.Errorf("second EnsureDir() error = %v", err)
	}
}

func TestPaths_PIDRoundTrip(t *testing.T) {
	t.Parallel()
	paths := PathsIn(filepath.Join(t.TempDir(), ".assetrev"))

	if err := paths.WritePID(); err != nil {
		t.Fatalf("WritePID() error = %v", err)
	}
	pid, err := paths.ReadPID()
	if err != nil {
		t.Fatalf("ReadPID() error = %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("ReadPID() = %d, want %d", pid, os.Getpid())
	}

	if err := paths.RemovePID(); err != nil {
		t.Errorf("RemovePID() error = %v", err)
	}
	if _, err := paths.ReadPID(); !os.IsNotExist(err) {
		t.Errorf("ReadPID() after remove error = %v, want not exist", err)
	}
}

func TestPaths_ReadPID(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		content string
		want    int
		wantErr bool
	}{
		{"plain", "12345", 12345, false},
		{"trailing newline", "12345\n", 12345, false},
		{"surrounding space", "  42  ", 42, false},
		{"garbage", "not-a-pid", 0, true},
		{"empty", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			paths := PathsIn(t.TempDir())
			if err := os.WriteFile(paths.PID, []byte(tt.content), 0o600); err != nil {
				t.Fatal(err)
			}
			got, err := paths.ReadPID()
			if (err != nil) != tt.wantErr {
				t.Fatalf("ReadPID() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ReadPID() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPaths_Cleanup(t *testing.T) {
	t.Parallel()
	paths := PathsIn(t.TempDir())

	// Nothing to remove is not an error.
	if err := paths.Cleanup(); err != nil {
		t.Errorf("Cleanup() on empty dir error = %v", err)
	}

	for _, f := range []string{paths.PID, paths.Socket} {
		if err := os.WriteFile(f, []byte("x"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	if err := paths.Cleanup(); err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	for _, f := range []string{paths.PID, paths.Socket} {
		if _, err := os.Stat(f); !os.IsNotExist(err) {
			t.Errorf("%s still exists", f)
		}
	}
}

func TestIsProcessRunning(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		pid  int
		want bool
	}{
		{"current process", os.Getpid(), true},
		{"zero pid", 0, false},
		{"negative pid", -1, false},
		{"very large pid", 999999999, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsProcessRunning(tt.pid); got != tt.want {
				t.Errorf("IsProcessRunning(%d) = %v, want %v", tt.pid, got, tt.want)
			}
		})
	}
}

func TestIsSocketAlive(t *testing.T) {
	t.Parallel()
	dir := shortTempDir(t)
	socket := filepath.Join(dir, "s.sock")

	if IsSocketAlive(socket) {
		t.Error("missing socket reported alive")
	}

	listener, err := net.Listen("unix", socket)
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	if !IsSocketAlive(socket) {
		t.Error("listening socket reported dead")
	}
	listener.Close()
}

func TestGetStatus(t *testing.T) {
	t.Parallel()

	t.Run("nil paths", func(t *testing.T) {
		status := GetStatus(nil)
		if status.Running || status.Stale {
			t.Errorf("GetStatus(nil) = %+v", status)
		}
	})

	t.Run("no pid file", func(t *testing.T) {
		paths := PathsIn(t.TempDir())
		status := GetStatus(paths)
		if status.Running || status.Stale || status.PID != 0 {
			t.Errorf("GetStatus() = %+v", status)
		}
		if status.SocketPath != paths.Socket {
			t.Errorf("SocketPath = %q", status.SocketPath)
		}
	})

	t.Run("running", func(t *testing.T) {
		paths := PathsIn(t.TempDir())
		if err := paths.WritePID(); err != nil {
			t.Fatal(err)
		}
		status := GetStatus(paths)
		if !status.Running || status.PID != os.Getpid() {
			t.Errorf("GetStatus() = %+v", status)
		}
	})

	t.Run("stale", func(t *testing.T) {
		paths := PathsIn(t.TempDir())
		if err := os.WriteFile(paths.PID, []byte(strconv.Itoa(999999999)), 0o600); err != nil {
			t.Fatal(err)
		}
		status := GetStatus(paths)
		if status.Running || !status.Stale {
			t.Errorf("GetStatus() = %+v", status)
		}
	})
}

func TestCleanupStale(t *testing.T) {
	t.Parallel()

	t.Run("nil paths", func(t *testing.T) {
		cleaned, err := CleanupStale(nil)
		if cleaned || err != nil {
			t.Errorf("CleanupStale(nil) = %v, %v", cleaned, err)
		}
	})

	t.Run("stale pid and socket", func(t *testing.T) {
		paths := PathsIn(t.TempDir())
		os.WriteFile(paths.PID, []byte("999999999"), 0o600)
		os.WriteFile(paths.Socket, []byte{}, 0o600)

		cleaned, err := CleanupStale(paths)
		if err != nil || !cleaned {
			t.Fatalf("CleanupStale() = %v, %v", cleaned, err)
		}
		if _, err := os.Stat(paths.Socket); !os.IsNotExist(err) {
			t.Error("socket not removed")
		}
	})

	t.Run("orphan socket", func(t *testing.T) {
		paths := PathsIn(t.TempDir())
		os.WriteFile(paths.Socket, []byte{}, 0o600)

		cleaned, err := CleanupStale(paths)
		if err != nil || !cleaned {
			t.Fatalf("CleanupStale() = %v, %v", cleaned, err)
		}
	})

	t.Run("running daemon untouched", func(t *testing.T) {
		paths := PathsIn(t.TempDir())
		if err := paths.WritePID(); err != nil {
			t.Fatal(err)
		}
		cleaned, err := CleanupStale(paths)
		if err != nil || cleaned {
			t.Fatalf("CleanupStale() = %v, %v", cleaned, err)
		}
		if _, err := os.Stat(paths.PID); err != nil {
			t.Error("PID file of a running daemon was removed")
		}
	})

	t.Run("nothing to clean", func(t *testing.T) {
		cleaned, err := CleanupStale(PathsIn(t.TempDir()))
		if err != nil || cleaned {
			t.Errorf("CleanupStale() = %v, %v", cleaned, err)
		}
	})
}

func TestWaitForExit(t *testing.T) {
	t.Parallel()
	if !WaitForExit(999999999, 100*time.Millisecond) {
		t.Error("a missing process should count as exited")
	}
	if WaitForExit(os.Getpid(), 100*time.Millisecond) {
		t.Error("the test process did not exit")
	}
}

func TestStopProcess_NonExistent(t *testing.T) {
	t.Parallel()
	// FindProcess succeeds on Unix; the signal itself fails.
	if err := StopProcess(999999999); err == nil {
		t.Error("expected error stopping a missing process")
	}
}
