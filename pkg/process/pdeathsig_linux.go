//go:build linux

package process

import (
	"os/exec"
	"syscall"
)

// setPdeathsig asks the kernel to SIGKILL the child if the gateway dies
// without running its shutdown path.
func setPdeathsig(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Pdeathsig: syscall.SIGKILL,
	}
}
