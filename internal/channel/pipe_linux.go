package channel

import (
	"os"

	"golang.org/x/sys/unix"
)

func setPipeSize(f *os.File, size int) error {
	conn, err := f.SyscallConn()
	if err != nil {
		return err
	}

	var opErr error
	err = conn.Control(func(fd uintptr) {
		_, opErr = unix.FcntlInt(fd, unix.F_SETPIPE_SZ, size)
	})
	if err != nil {
		return err
	}

	return opErr
}
