//go:build !windows

package report

import (
	"fmt"
	"os"
)

// ShowPlatform writes the message to stderr.
func ShowPlatform(title, message string) error {
	_, err := fmt.Fprintf(os.Stderr, "%s: %s\n", title, message)
	return err
}
