package source

import (
	"fmt"
	"sync"
	"unsafe"

	"codeberg.org/mutker/inputrate/internal/errors"
	"codeberg.org/mutker/inputrate/internal/event"
	"golang.org/x/sys/windows"
)

const (
	wmClose = 0x0010
	wmInput = 0x00FF

	ridHeader = 0x10000005

	// HWND_MESSAGE
	hwndMessage = ^uintptr(2)
)

var (
	user32 = windows.NewLazySystemDLL("user32.dll")

	procRegisterClassExW        = user32.NewProc("RegisterClassExW")
	procCreateWindowExW         = user32.NewProc("CreateWindowExW")
	procDefWindowProcW          = user32.NewProc("DefWindowProcW")
	procDestroyWindow           = user32.NewProc("DestroyWindow")
	procRegisterRawInputDevices = user32.NewProc("RegisterRawInputDevices")
	procGetRegisteredDevices    = user32.NewProc("GetRegisteredRawInputDevices")
	procGetRawInputData         = user32.NewProc("GetRawInputData")
	procGetMessageW             = user32.NewProc("GetMessageW")
	procDispatchMessageW        = user32.NewProc("DispatchMessageW")
	procPostMessageW            = user32.NewProc("PostMessageW")
)

type wndClassEx struct {
	size       uint32
	style      uint32
	wndProc    uintptr
	clsExtra   int32
	wndExtra   int32
	instance   windows.Handle
	icon       windows.Handle
	cursor     windows.Handle
	background windows.Handle
	menuName   *uint16
	className  *uint16
	iconSm     windows.Handle
}

type point struct {
	x, y int32
}

type msg struct {
	hwnd    uintptr
	message uint32
	wParam  uintptr
	lParam  uintptr
	time    uint32
	pt      point
	private uint32
}

type rawInputHeader struct {
	typ    uint32
	size   uint32
	device uintptr
	wParam uintptr
}

// The window class is process-wide and registered once no matter how many
// sources are created.
var (
	classOnce     sync.Once
	classErr      error
	className     *uint16
	classInstance windows.Handle
)

func registerClass() error {
	classOnce.Do(func() {
		if err := windows.GetModuleHandleEx(0, nil, &classInstance); err != nil {
			classErr = fmt.Errorf("GetModuleHandleEx: %w", err)
			return
		}

		className, classErr = windows.UTF16PtrFromString("InputRateRawInputSink")
		if classErr != nil {
			return
		}

		wc := wndClassEx{
			wndProc:   windows.NewCallback(defWindowProc),
			instance:  classInstance,
			className: className,
		}
		wc.size = uint32(unsafe.Sizeof(wc))

		if r, _, err := procRegisterClassExW.Call(uintptr(unsafe.Pointer(&wc))); r == 0 {
			classErr = fmt.Errorf("RegisterClassExW: %w", err)
		}
	})

	return classErr
}

func defWindowProc(hwnd, message, wParam, lParam uintptr) uintptr {
	r, _, _ := procDefWindowProcW.Call(hwnd, message, wParam, lParam)
	return r
}

type windowsSurface struct {
	hwnd uintptr
}

// NewPlatformSurface creates a hidden message-only window on the calling
// thread.
func NewPlatformSurface() (Surface, error) {
	if err := registerClass(); err != nil {
		return nil, err
	}

	hwnd, _, err := procCreateWindowExW.Call(
		0,
		uintptr(unsafe.Pointer(className)),
		0,
		0,
		0, 0, 0, 0,
		hwndMessage,
		0,
		uintptr(classInstance),
		0,
	)
	if hwnd == 0 {
		return nil, fmt.Errorf("CreateWindowExW: %w", err)
	}

	return &windowsSurface{hwnd: hwnd}, nil
}

func (w *windowsSurface) Register(class event.DeviceClass) error {
	existing, err := registeredDevices()
	if err != nil {
		return err
	}

	devs := registrations(existing, class, w.hwnd)
	r, _, err := procRegisterRawInputDevices.Call(
		uintptr(unsafe.Pointer(&devs[0])),
		uintptr(len(devs)),
		unsafe.Sizeof(devs[0]),
	)
	if r == 0 {
		return fmt.Errorf("RegisterRawInputDevices: %w", err)
	}

	return nil
}

// registeredDevices lists the raw input registrations of this process.
func registeredDevices() ([]rawInputDevice, error) {
	var n uint32
	size := unsafe.Sizeof(rawInputDevice{})

	r, _, err := procGetRegisteredDevices.Call(0, uintptr(unsafe.Pointer(&n)), size)
	if int32(r) == -1 && !errors.Is(err, windows.ERROR_INSUFFICIENT_BUFFER) {
		return nil, fmt.Errorf("GetRegisteredRawInputDevices: %w", err)
	}

	for n > 0 {
		devs := make([]rawInputDevice, n)
		r, _, err := procGetRegisteredDevices.Call(
			uintptr(unsafe.Pointer(&devs[0])),
			uintptr(unsafe.Pointer(&n)),
			size,
		)
		if int32(r) >= 0 {
			return devs[:r], nil
		}
		// n now holds the larger count registered in the meantime.
		if !errors.Is(err, windows.ERROR_INSUFFICIENT_BUFFER) {
			return nil, fmt.Errorf("GetRegisteredRawInputDevices: %w", err)
		}
	}

	return nil, nil
}

func (w *windowsSurface) Next() (Message, error) {
	var m msg

	r, _, err := procGetMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
	switch int32(r) {
	case -1:
		return Message{}, fmt.Errorf("GetMessageW: %w", err)
	case 0:
		// WM_QUIT
		return Message{Kind: KindClose}, nil
	}

	switch {
	case m.message == wmClose && m.hwnd == w.hwnd:
		return Message{Kind: KindClose, Native: &m}, nil
	case m.message == wmInput:
		typ, err := inputType(m.lParam)
		if err != nil {
			return Message{}, err
		}
		class, ok := rawClass(typ)
		if !ok {
			return Message{Kind: KindOther, Native: &m}, nil
		}
		return Message{Kind: KindInput, Class: class, Native: &m}, nil
	default:
		return Message{Kind: KindOther, Native: &m}, nil
	}
}

// inputType reads the device type from the raw input header.
func inputType(lParam uintptr) (uint32, error) {
	var hdr rawInputHeader
	size := uint32(unsafe.Sizeof(hdr))

	r, _, err := procGetRawInputData.Call(
		lParam,
		ridHeader,
		uintptr(unsafe.Pointer(&hdr)),
		uintptr(unsafe.Pointer(&size)),
		unsafe.Sizeof(hdr),
	)
	if int32(r) <= 0 {
		return 0, fmt.Errorf("GetRawInputData: %w", err)
	}

	return hdr.typ, nil
}

func (w *windowsSurface) Dispatch(m Message) {
	native, ok := m.Native.(*msg)
	if !ok {
		return
	}
	procDispatchMessageW.Call(uintptr(unsafe.Pointer(native)))
}

func (w *windowsSurface) Close() error {
	r, _, err := procPostMessageW.Call(w.hwnd, wmClose, 0, 0)
	if r == 0 {
		return fmt.Errorf("PostMessageW: %w", err)
	}

	return nil
}

func (w *windowsSurface) Destroy() error {
	r, _, err := procDestroyWindow.Call(w.hwnd)
	if r == 0 {
		return fmt.Errorf("DestroyWindow: %w", err)
	}

	return nil
}
