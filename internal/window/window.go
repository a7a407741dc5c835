// Package window reads the foreground window and user idle time from the
// operating system.
//
// Each platform has one or more [Source] implementations. Linux picks
// between Hyprland, GNOME (FocusedWindow extension over D-Bus) and X11
// (xdotool); macOS uses System Events through osascript; Windows calls
// user32 directly.
package window

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/process"
	"tools.zach/dev/statuscord/internal/activity"
)

var (
	// ErrUnsupported is returned for queries the current platform or
	// desktop cannot answer.
	ErrUnsupported = errors.New("not supported on this platform")
	// ErrNoWindow is returned when nothing has focus.
	ErrNoWindow = errors.New("no foreground window")
)

// Source reads the foreground window and idle time.
type Source interface {
	// Name identifies the backend, e.g. "hyprland".
	Name() string
	// Active returns the focused window's title and owning process name.
	Active(ctx context.Context) (activity.Sample, error)
	// Idle returns the time since the last user input.
	Idle(ctx context.Context) (time.Duration, error)
}

// New returns the source named by name, or the best match for the current
// session when name is "auto" or empty.
func New(name string) (Source, error) {
	if name == "" {
		name = "auto"
	}
	s, err := platformSource(name)
	if err != nil {
		return nil, fmt.Errorf("window source %q: %w", name, err)
	}
	return s, nil
}

// ///////////////////////////////////////////////
// Helpers
// ///////////////////////////////////////////////

// runFunc runs a command and returns its stdout.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// processName resolves a PID to its executable name.
func processName(ctx context.Context, pid int32) (string, error) {
	if pid <= 0 {
		return "", fmt.Errorf("invalid pid %d", pid)
	}
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return "", err
	}
	return p.NameWithContext(ctx)
}

// sample builds a Sample, preferring the PID's process name and falling
// back to the desktop-provided class.
func sample(ctx context.Context, title string, pid int32, class string) (activity.Sample, error) {
	proc := ""
	if pid > 0 {
		if name, err := processName(ctx, pid); err == nil {
			proc = name
		}
	}
	if proc == "" {
		proc = strings.TrimSpace(class)
	}
	title = strings.TrimSpace(title)
	if proc == "" && title == "" {
		return activity.Sample{}, ErrNoWindow
	}
	return activity.Sample{Title: title, Process: proc}, nil
}
