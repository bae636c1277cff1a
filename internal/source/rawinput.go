package source

import "codeberg.org/mutker/inputrate/internal/event"

const (
	ridevRemove    = 0x00000001
	ridevInputSink = 0x00000100

	rimTypeMouse    = 0
	rimTypeKeyboard = 1
)

// rawInputDevice mirrors RAWINPUTDEVICE.
type rawInputDevice struct {
	usagePage uint16
	usage     uint16
	flags     uint32
	target    uintptr
}

// registrations returns the device list that drops every usage in existing
// other than class and subscribes target to class even while unfocused.
func registrations(existing []rawInputDevice, class event.DeviceClass, target uintptr) []rawInputDevice {
	devs := make([]rawInputDevice, 0, len(existing)+1)
	for _, d := range existing {
		if d.usagePage == class.UsagePage() && d.usage == class.Usage() {
			continue
		}
		// RIDEV_REMOVE requires a null target.
		devs = append(devs, rawInputDevice{
			usagePage: d.usagePage,
			usage:     d.usage,
			flags:     ridevRemove,
		})
	}

	return append(devs, rawInputDevice{
		usagePage: class.UsagePage(),
		usage:     class.Usage(),
		flags:     ridevInputSink,
		target:    target,
	})
}

// rawClass maps the dwType of a raw input header to a device class.
func rawClass(typ uint32) (event.DeviceClass, bool) {
	switch typ {
	case rimTypeMouse:
		return event.ClassMouse, true
	case rimTypeKeyboard:
		return event.ClassKeyboard, true
	default:
		return 0, false
	}
}
