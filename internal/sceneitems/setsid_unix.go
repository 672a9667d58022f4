//go:build !windows

package sceneitems

import "syscall"

// sessionAttr places the converter in its own session so it cannot reach
// the parent's controlling terminal.
func sessionAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}
