package window

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// hyprWindow is the subset of `hyprctl activewindow -j` used here.
type hyprWindow struct {
	Class string `json:"class"`
	Title string `json:"title"`
	PID   int32  `json:"pid"`
}

func parseHyprland(out []byte) (hyprWindow, error) {
	var w hyprWindow
	trimmed := strings.TrimSpace(string(out))
	if trimmed == "" || trimmed == "{}" || !strings.HasPrefix(trimmed, "{") {
		return w, ErrNoWindow
	}
	if err := json.Unmarshal([]byte(trimmed), &w); err != nil {
		return w, fmt.Errorf("parse hyprctl output: %w", err)
	}
	return w, nil
}

// focusedWindow is the JSON returned by the GNOME FocusedWindow extension.
type focusedWindow struct {
	Title   string `json:"title"`
	WmClass string `json:"wm_class"`
	PID     int32  `json:"pid"`
}

func parseFocusedWindow(s string) (focusedWindow, error) {
	var w focusedWindow
	if strings.TrimSpace(s) == "" {
		return w, ErrNoWindow
	}
	if err := json.Unmarshal([]byte(s), &w); err != nil {
		return w, fmt.Errorf("parse FocusedWindow response: %w", err)
	}
	return w, nil
}

// parseXdotool reads `xdotool getactivewindow getwindowname getwindowpid`:
// the title on the first line and the PID on the second.
func parseXdotool(out []byte) (title string, pid int32, err error) {
	lines := strings.Split(strings.TrimRight(string(out), "\n"), "\n")
	if len(lines) == 0 || (len(lines) == 1 && lines[0] == "") {
		return "", 0, ErrNoWindow
	}
	title = lines[0]
	if len(lines) > 1 {
		n, convErr := strconv.ParseInt(strings.TrimSpace(lines[len(lines)-1]), 10, 32)
		if convErr == nil {
			pid = int32(n)
		}
	}
	return title, pid, nil
}

// parseOSAScript reads the app name and window title separated by a newline.
func parseOSAScript(out []byte) (process, title string, err error) {
	s := strings.TrimRight(string(out), "\n")
	if strings.TrimSpace(s) == "" {
		return "", "", ErrNoWindow
	}
	process, title, _ = strings.Cut(s, "\n")
	return strings.TrimSpace(process), strings.TrimSpace(title), nil
}

// parseMillis reads an idle time printed in milliseconds (xprintidle).
func parseMillis(out []byte) (time.Duration, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(string(out)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse idle time: %w", err)
	}
	return time.Duration(n) * time.Millisecond, nil
}

var hidIdleRe = regexp.MustCompile(`"HIDIdleTime"\s*=\s*(\d+)`)

// parseIoregIdle reads HIDIdleTime (nanoseconds) from `ioreg -c IOHIDSystem`.
func parseIoregIdle(out []byte) (time.Duration, error) {
	m := hidIdleRe.FindSubmatch(out)
	if m == nil {
		return 0, fmt.Errorf("HIDIdleTime not found in ioreg output")
	}
	n, err := strconv.ParseUint(string(m[1]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse HIDIdleTime: %w", err)
	}
	return time.Duration(n), nil
}
