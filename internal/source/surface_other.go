//go:build !windows

package source

import (
	"runtime"

	"codeberg.org/mutker/inputrate/internal/errors"
)

// NewPlatformSurface reports that raw input capture is not available.
func NewPlatformSurface() (Surface, error) {
	return nil, errors.New().WithData(ErrUnsupported, runtime.GOOS)
}
