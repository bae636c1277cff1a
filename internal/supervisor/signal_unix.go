//go:build !windows

package supervisor

import "os"

func interrupt(p *os.Process) error {
	return p.Signal(os.Interrupt)
}
