//go:build !unix

package momo

import (
	"os"
	"os/exec"
)

func setProcessGroup(*exec.Cmd) {}

// Without signals the graceful path degrades to an immediate kill.
func terminate(p *os.Process) error {
	return p.Kill()
}

func kill(p *os.Process) error {
	return p.Kill()
}
