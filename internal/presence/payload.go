// Package presence turns a classification and its timers into the payload
// published to Discord.
package presence

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"tools.zach/dev/statuscord/internal/activity"
	"tools.zach/dev/statuscord/internal/metrics"
)

// Field limits enforced on every payload.
const (
	MaxField      = 128
	MaxStatePart  = 60
	MaxButtonText = 32
	MaxButtons    = 2
)

// ///////////////////////////////////////////////
// Types
// ///////////////////////////////////////////////

// Button is a clickable link on the presence card.
type Button struct {
	Label string
	URL   string
}

// Payload is the presence for one poll. It is rebuilt on every tick.
type Payload struct {
	Details    string
	State      string
	LargeImage string
	LargeText  string
	SmallImage string
	SmallText  string
	// Start is when the current activity began; Discord renders the elapsed
	// timer from it.
	Start   time.Time
	Buttons []Button
}

// Input is everything [Build] needs for one tick.
type Input struct {
	Result      activity.Result
	StartedAt   time.Time
	Elapsed     time.Duration
	Accumulated time.Duration
	// Usage is nil when metrics could not be sampled.
	Usage    *metrics.Usage
	Hostname string
}

// Options are the display toggles from configuration.
type Options struct {
	// DetailedStats shows accumulated category time in the small image tooltip.
	DetailedStats bool
	// SystemInfo appends CPU and RAM to the state line.
	SystemInfo bool
	// SmallImage is the asset key used with DetailedStats.
	SmallImage string
	Buttons    []Button
}

// ///////////////////////////////////////////////
// Build
// ///////////////////////////////////////////////

// Build composes the payload. It has no side effects.
func Build(in Input, opts Options) Payload {
	dur := FormatDuration(in.Elapsed)

	parts := []string{Truncate(in.Result.State, MaxStatePart), dur}
	if opts.SystemInfo && in.Usage != nil {
		parts = append(parts, fmt.Sprintf("CPU: %d%%, RAM: %d%%", in.Usage.CPU, in.Usage.RAM))
	}

	p := Payload{
		Details:    Truncate(in.Result.Details, MaxField),
		State:      Truncate(strings.Join(parts, " | "), MaxField),
		LargeImage: Truncate(in.Result.Icon, MaxField),
		LargeText:  Truncate(Capitalize(in.Result.Category)+" for "+dur, MaxField),
		Start:      in.StartedAt,
		Buttons:    capButtons(opts.Buttons),
	}

	if opts.DetailedStats {
		text := FormatDuration(in.Accumulated) + " total"
		if in.Hostname != "" {
			text += " on " + in.Hostname
		}
		p.SmallImage = Truncate(opts.SmallImage, MaxField)
		p.SmallText = Truncate(text, MaxField)
	}
	return p
}

// Fallback is published after repeated window query failures so the
// profile never goes blank while the daemon runs.
func Fallback(goos string, start time.Time) Payload {
	return Payload{
		Details:    "Online",
		State:      "Using " + OSName(goos),
		LargeImage: "default",
		LargeText:  "Online",
		Start:      start,
	}
}

// OSName maps a GOOS value to a display name.
func OSName(goos string) string {
	switch goos {
	case "windows":
		return "Windows"
	case "darwin":
		return "macOS"
	case "linux":
		return "Linux"
	case "":
		return "Unknown"
	}
	return Capitalize(goos)
}

// Capitalize upper-cases the first rune of s.
func Capitalize(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	if n == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + s[n:]
}

func capButtons(in []Button) []Button {
	var out []Button
	for _, b := range in {
		if len(out) == MaxButtons {
			break
		}
		if b.Label == "" || b.URL == "" {
			continue
		}
		out = append(out, Button{Label: Truncate(b.Label, MaxButtonText), URL: b.URL})
	}
	return out
}
