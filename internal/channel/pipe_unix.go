//go:build !windows

package channel

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"golang.org/x/sys/unix"
)

// firstExtraFD is the descriptor number exec assigns to ExtraFiles[0].
const firstExtraFD = 3

func newPipe(size int) (r, w *os.File, err error) {
	r, w, err = os.Pipe()
	if err != nil {
		return nil, nil, err
	}

	// The size is a hint; the kernel may refuse it.
	_ = setPipeSize(w, size)

	return r, w, nil
}

func attach(cmd *exec.Cmd, f *os.File) (string, error) {
	cmd.ExtraFiles = append(cmd.ExtraFiles, f)
	fd := firstExtraFD + len(cmd.ExtraFiles) - 1

	return strconv.Itoa(fd), nil
}

func openInherited(value string) (*os.File, error) {
	fd, err := strconv.Atoi(value)
	if err != nil {
		return nil, err
	}
	if fd < firstExtraFD {
		return nil, fmt.Errorf("descriptor %d is reserved for stdio", fd)
	}

	if _, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0); err != nil {
		return nil, fmt.Errorf("descriptor %d: %w", fd, err)
	}

	// Non-blocking descriptors are registered with the runtime poller, which
	// lets Close interrupt a pending read or write.
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, fmt.Errorf("descriptor %d: %w", fd, err)
	}

	return os.NewFile(uintptr(fd), "inputrate-channel"), nil
}
