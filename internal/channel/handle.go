package channel

import (
	"os"
	"os/exec"
	"sync"

	"codeberg.org/mutker/inputrate/internal/errors"
)

// Handle is the move-only OS resource behind one end of a channel. It can
// be transferred to a child process once; afterwards every use from the
// previous holder fails with ErrTransferred.
type Handle struct {
	mu          sync.Mutex
	file        *os.File
	transferred bool
	released    bool
}

func newHandle(f *os.File) *Handle {
	return &Handle{file: f}
}

// Transfer marks the handle inheritable, attaches it to cmd and returns
// the decimal identity the child must pass to Adopt. The caller releases
// the local copy with Release once cmd has started.
func (h *Handle) Transfer(cmd *exec.Cmd) (string, error) {
	errFactory := errors.New()

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.transferred || h.released {
		return "", errFactory.New(ErrTransferred)
	}

	value, err := attach(cmd, h.file)
	if err != nil {
		return "", errFactory.Wrap(ErrTransferFailed, err)
	}
	h.transferred = true

	return value, nil
}

// Transferred reports whether the handle has been moved to a child.
func (h *Handle) Transferred() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.transferred
}

// Release closes the local copy of the OS handle. It is idempotent.
func (h *Handle) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return nil
	}
	h.released = true

	return h.file.Close()
}

// usable returns the underlying file unless the handle was moved away.
func (h *Handle) usable() (*os.File, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.transferred || h.released {
		return nil, errors.New().New(ErrTransferred)
	}

	return h.file, nil
}

var (
	adoptMu sync.Mutex
	adopted = make(map[string]bool)
)

// adopt reconstructs an inherited handle exactly once per process.
func adopt(value string) (*os.File, error) {
	errFactory := errors.New()

	adoptMu.Lock()
	defer adoptMu.Unlock()

	if adopted[value] {
		return nil, errFactory.WithData(ErrAlreadyAdopted, value)
	}

	f, err := openInherited(value)
	if err != nil {
		return nil, errFactory.Wrap(ErrInvalidHandle, err)
	}
	adopted[value] = true

	return f, nil
}
