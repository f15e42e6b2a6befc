//go:build windows

package cli

import "syscall"

// daemonSysProcAttr detaches the background daemon from the console's
// process group so Ctrl+C in the parent terminal does not reach it.
func daemonSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}
