//go:build linux

package procname

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// commLimit is TASK_COMM_LEN minus the trailing NUL.
const commLimit = 15

func setComm(name string) error {
	buf := make([]byte, commLimit+1)
	copy(buf, name)
	return unix.Prctl(unix.PR_SET_NAME, uintptr(unsafe.Pointer(&buf[0])), 0, 0, 0)
}
