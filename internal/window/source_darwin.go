//go:build darwin

package window

import (
	"context"
	"fmt"
	"time"

	"tools.zach/dev/statuscord/internal/activity"
)

const frontmostScript = `tell application "System Events"
	set frontApp to first application process whose frontmost is true
	set appName to name of frontApp
	set winTitle to ""
	try
		set winTitle to name of front window of frontApp
	end try
end tell
return appName & linefeed & winTitle`

func platformSource(name string) (Source, error) {
	switch name {
	case "auto", "macos":
		return &macSource{run: runCommand}, nil
	}
	return nil, fmt.Errorf("not available on macOS: %w", ErrUnsupported)
}

type macSource struct {
	run runFunc
}

func (*macSource) Name() string { return "macos" }

func (s *macSource) Active(ctx context.Context) (activity.Sample, error) {
	out, err := s.run(ctx, "osascript", "-e", frontmostScript)
	if err != nil {
		return activity.Sample{}, err
	}
	proc, title, err := parseOSAScript(out)
	if err != nil {
		return activity.Sample{}, err
	}
	return activity.Sample{Title: title, Process: proc}, nil
}

func (s *macSource) Idle(ctx context.Context) (time.Duration, error) {
	out, err := s.run(ctx, "ioreg", "-c", "IOHIDSystem", "-d", "4")
	if err != nil {
		return 0, err
	}
	return parseIoregIdle(out)
}
