//go:build !windows

package exec

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

const idleNice = 19

func configureProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func lowerPriority(pid int) error {
	return unix.Setpriority(unix.PRIO_PROCESS, pid, idleNice)
}
