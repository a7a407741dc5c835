//go:build linux

package window

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
	"tools.zach/dev/statuscord/internal/activity"
)

const (
	focusedWindowDest   = "org.gnome.Shell"
	focusedWindowPath   = "/org/gnome/shell/extensions/FocusedWindow"
	focusedWindowMethod = "org.gnome.shell.extensions.FocusedWindow.Get"

	idleMonitorDest   = "org.gnome.Mutter.IdleMonitor"
	idleMonitorPath   = "/org/gnome/Mutter/IdleMonitor/Core"
	idleMonitorMethod = "org.gnome.Mutter.IdleMonitor.GetIdletime"
)

func platformSource(name string) (Source, error) {
	if name == "auto" {
		name = detect(os.Getenv)
	}
	switch name {
	case "hyprland":
		return &hyprlandSource{run: runCommand}, nil
	case "gnome":
		return &gnomeSource{}, nil
	case "x11":
		return &x11Source{run: runCommand}, nil
	case "":
		return nil, fmt.Errorf("no supported desktop session detected: %w", ErrUnsupported)
	}
	return nil, fmt.Errorf("not available on linux: %w", ErrUnsupported)
}

// detect picks a backend from the session environment.
func detect(getenv func(string) string) string {
	desktop := strings.ToLower(getenv("XDG_CURRENT_DESKTOP"))
	switch {
	case getenv("HYPRLAND_INSTANCE_SIGNATURE") != "":
		return "hyprland"
	case strings.Contains(desktop, "gnome") && getenv("WAYLAND_DISPLAY") != "":
		return "gnome"
	case getenv("DISPLAY") != "":
		return "x11"
	}
	return ""
}

// ///////////////////////////////////////////////
// Hyprland
// ///////////////////////////////////////////////

type hyprlandSource struct {
	run runFunc
}

func (*hyprlandSource) Name() string { return "hyprland" }

func (s *hyprlandSource) Active(ctx context.Context) (activity.Sample, error) {
	out, err := s.run(ctx, "hyprctl", "activewindow", "-j")
	if err != nil {
		return activity.Sample{}, err
	}
	w, err := parseHyprland(out)
	if err != nil {
		return activity.Sample{}, err
	}
	return sample(ctx, w.Title, w.PID, w.Class)
}

func (*hyprlandSource) Idle(context.Context) (time.Duration, error) {
	return 0, ErrUnsupported
}

// ///////////////////////////////////////////////
// GNOME
// ///////////////////////////////////////////////

// gnomeSource needs the FocusedWindow shell extension; GNOME on Wayland
// exposes no other foreground window API.
type gnomeSource struct{}

func (*gnomeSource) Name() string { return "gnome" }

func (*gnomeSource) Active(ctx context.Context) (activity.Sample, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return activity.Sample{}, fmt.Errorf("connect session bus: %w", err)
	}
	var raw string
	call := conn.Object(focusedWindowDest, dbus.ObjectPath(focusedWindowPath)).CallWithContext(ctx, focusedWindowMethod, 0)
	if call.Err != nil {
		return activity.Sample{}, fmt.Errorf("call FocusedWindow.Get (is the focused-window-dbus extension enabled?): %w", call.Err)
	}
	if err := call.Store(&raw); err != nil {
		return activity.Sample{}, fmt.Errorf("read FocusedWindow response: %w", err)
	}
	w, err := parseFocusedWindow(raw)
	if err != nil {
		return activity.Sample{}, err
	}
	return sample(ctx, w.Title, w.PID, w.WmClass)
}

func (*gnomeSource) Idle(ctx context.Context) (time.Duration, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return 0, fmt.Errorf("connect session bus: %w", err)
	}
	var ms uint64
	call := conn.Object(idleMonitorDest, dbus.ObjectPath(idleMonitorPath)).CallWithContext(ctx, idleMonitorMethod, 0)
	if call.Err != nil {
		return 0, fmt.Errorf("call IdleMonitor.GetIdletime: %w", call.Err)
	}
	if err := call.Store(&ms); err != nil {
		return 0, fmt.Errorf("read IdleMonitor response: %w", err)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// ///////////////////////////////////////////////
// X11
// ///////////////////////////////////////////////

type x11Source struct {
	run runFunc
}

func (*x11Source) Name() string { return "x11" }

func (s *x11Source) Active(ctx context.Context) (activity.Sample, error) {
	out, err := s.run(ctx, "xdotool", "getactivewindow", "getwindowname", "getwindowpid")
	if err != nil {
		return activity.Sample{}, err
	}
	title, pid, err := parseXdotool(out)
	if err != nil {
		return activity.Sample{}, err
	}
	return sample(ctx, title, pid, "")
}

func (s *x11Source) Idle(ctx context.Context) (time.Duration, error) {
	out, err := s.run(ctx, "xprintidle")
	if err != nil {
		return 0, err
	}
	return parseMillis(out)
}
