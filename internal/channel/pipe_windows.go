package channel

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

func newPipe(size int) (r, w *os.File, err error) {
	var rh, wh windows.Handle

	// Both ends start non-inheritable; only the end that is transferred is
	// later flagged for inheritance.
	sa := &windows.SecurityAttributes{
		Length:        uint32(unsafe.Sizeof(windows.SecurityAttributes{})),
		InheritHandle: 0,
	}
	if err := windows.CreatePipe(&rh, &wh, sa, uint32(size)); err != nil {
		return nil, nil, err
	}

	return os.NewFile(uintptr(rh), "inputrate-channel-r"), os.NewFile(uintptr(wh), "inputrate-channel-w"), nil
}

func attach(cmd *exec.Cmd, f *os.File) (string, error) {
	h := windows.Handle(f.Fd())

	if err := windows.SetHandleInformation(h, windows.HANDLE_FLAG_INHERIT, windows.HANDLE_FLAG_INHERIT); err != nil {
		return "", err
	}

	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.AdditionalInheritedHandles = append(cmd.SysProcAttr.AdditionalInheritedHandles, syscall.Handle(h))

	return strconv.FormatUint(uint64(h), 10), nil
}

func openInherited(value string) (*os.File, error) {
	v, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return nil, err
	}
	h := windows.Handle(v)

	typ, err := windows.GetFileType(h)
	if err != nil {
		return nil, fmt.Errorf("handle %d: %w", v, err)
	}
	if typ != windows.FILE_TYPE_PIPE {
		return nil, fmt.Errorf("handle %d is not a pipe", v)
	}

	return os.NewFile(uintptr(h), "inputrate-channel"), nil
}
