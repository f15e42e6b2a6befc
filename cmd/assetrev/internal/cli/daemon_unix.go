//go:build unix

package cli

import "syscall"

// daemonSysProcAttr starts the background daemon in its own session so it
// outlives the terminal that ran 'assetrev daemon start'.
func daemonSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}
