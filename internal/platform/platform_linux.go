//go:build linux

package platform

import "golang.org/x/sys/unix"

func lockMemory() error {
	return unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE)
}

func setNice(n int) error {
	return unix.Setpriority(unix.PRIO_PROCESS, 0, n)
}

func access(path string) error {
	return unix.Access(path, unix.R_OK|unix.W_OK)
}
