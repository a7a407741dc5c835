//go:build windows

package window

import (
	"context"
	"fmt"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
	"tools.zach/dev/statuscord/internal/activity"
)

var (
	user32                   = windows.NewLazySystemDLL("user32.dll")
	procGetWindowTextW       = user32.NewProc("GetWindowTextW")
	procGetWindowTextLengthW = user32.NewProc("GetWindowTextLengthW")
	procGetLastInputInfo     = user32.NewProc("GetLastInputInfo")

	kernel32         = windows.NewLazySystemDLL("kernel32.dll")
	procGetTickCount = kernel32.NewProc("GetTickCount")
)

// lastInputInfo mirrors LASTINPUTINFO.
type lastInputInfo struct {
	cbSize uint32
	dwTime uint32
}

func platformSource(name string) (Source, error) {
	switch name {
	case "auto", "windows":
		return winSource{}, nil
	}
	return nil, fmt.Errorf("not available on windows: %w", ErrUnsupported)
}

type winSource struct{}

func (winSource) Name() string { return "windows" }

func (winSource) Active(ctx context.Context) (activity.Sample, error) {
	hwnd := windows.GetForegroundWindow()
	if hwnd == 0 {
		return activity.Sample{}, ErrNoWindow
	}

	n, _, _ := procGetWindowTextLengthW.Call(uintptr(hwnd))
	buf := make([]uint16, n+1)
	procGetWindowTextW.Call(uintptr(hwnd), uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	title := windows.UTF16ToString(buf)

	var pid uint32
	if _, err := windows.GetWindowThreadProcessId(hwnd, &pid); err != nil {
		return activity.Sample{}, fmt.Errorf("GetWindowThreadProcessId: %w", err)
	}
	return sample(ctx, title, int32(pid), "")
}

func (winSource) Idle(context.Context) (time.Duration, error) {
	info := lastInputInfo{cbSize: uint32(unsafe.Sizeof(lastInputInfo{}))}
	r, _, err := procGetLastInputInfo.Call(uintptr(unsafe.Pointer(&info)))
	if r == 0 {
		return 0, fmt.Errorf("GetLastInputInfo: %w", err)
	}
	tick, _, _ := procGetTickCount.Call()
	// Both counters wrap at 2^32 ms; uint32 subtraction handles the wrap.
	return time.Duration(uint32(tick)-info.dwTime) * time.Millisecond, nil
}
