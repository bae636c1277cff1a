package report

import (
	"fmt"
	"os"

	"golang.org/x/sys/windows"
)

// ShowPlatform writes the message to stderr and shows it in a modal
// message box.
func ShowPlatform(title, message string) error {
	fmt.Fprintf(os.Stderr, "%s: %s\n", title, message)

	t, err := windows.UTF16PtrFromString(title)
	if err != nil {
		return err
	}
	m, err := windows.UTF16PtrFromString(message)
	if err != nil {
		return err
	}

	_, err = windows.MessageBox(0, m, t, windows.MB_OK|windows.MB_ICONERROR)
	return err
}
