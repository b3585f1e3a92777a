//go:build !linux

package process

import "os/exec"

// setPdeathsig is a no-op on platforms without parent-death signals.
func setPdeathsig(_ *exec.Cmd) {}
