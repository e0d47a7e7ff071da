//go:build !unix

package procexec

import "os/exec"

func configureProcessGroup(c *exec.Cmd) {}
