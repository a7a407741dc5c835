package daemon

import (
	"context"
	"errors"

	"tools.zach/dev/statuscord/internal/activity"
	"tools.zach/dev/statuscord/internal/discord"
	"tools.zach/dev/statuscord/internal/logger"
	"tools.zach/dev/statuscord/internal/metrics"
	"tools.zach/dev/statuscord/internal/presence"
	"tools.zach/dev/statuscord/internal/window"
)

// Decision is what one poll decided to show.
type Decision struct {
	Sample activity.Sample
	Result activity.Result
	// Payload is empty when Clear is set.
	Payload presence.Payload
	// Identity is the identity the classification asks for.
	Identity string
	// Clear means the focused process is ignored: presence is cleared and
	// nothing else happens this tick.
	Clear bool
	// Fallback means the generic card replaced the classification after
	// repeated window query failures.
	Fallback bool
	// Stale means the window query failed and the previous payload stays up.
	Stale bool
}

// ///////////////////////////////////////////////
// Tick
// ///////////////////////////////////////////////

// Tick runs one poll: decide, publish, then request the identity. Publish
// failures are logged by the manager and retried on the next tick.
func (a *App) Tick(ctx context.Context) {
	d := a.Decide(ctx)
	logger.Trace(a.log, "tick",
		"process", d.Sample.Process,
		"title", d.Sample.Title,
		"match", d.Result.Match,
		"identity", d.Identity,
	)

	if d.Clear {
		if a.cleared {
			return
		}
		a.log.Debug("clearing presence for ignored process", "process", d.Sample.Process)
		if err := a.manager.Publish(nil); err == nil {
			a.cleared = true
			a.last = nil
		}
		return
	}
	a.cleared = false
	if d.Stale {
		return
	}

	act := toDiscordActivity(d.Payload)
	a.last = act
	if err := a.manager.Publish(act); err == nil {
		a.log.Debug("presence updated",
			"category", d.Result.Category,
			"source", d.Result.Source,
			"details", d.Payload.Details,
			"state", d.Payload.State,
		)
	}
	a.manager.RequestIdentity(d.Identity)
}

// Decide samples the OS and builds the payload for this tick. Acquisition
// errors are logged and replaced by sentinels; Decide never fails.
func (a *App) Decide(ctx context.Context) Decision {
	now := a.clock.Now()

	// No foreground window is a normal answer and is classified as Unknown.
	// Only real query errors count toward the stale and fallback paths.
	s, err := a.window.Active(ctx)
	switch {
	case err == nil:
		a.failures = 0
	case errors.Is(err, window.ErrNoWindow):
		a.log.Debug("no foreground window")
		a.failures = 0
		s = activity.Unknown
	default:
		a.failures++
		a.log.Warn("window query failed", "source", a.window.Name(), "failures", a.failures, "error", err)
		s = activity.Unknown
	}

	if limit := a.cfg.Behavior.FallbackAfterFailures; limit > 0 && a.failures >= limit {
		start := a.startedAt
		if start.IsZero() {
			start = now
		}
		return Decision{
			Sample:   s,
			Payload:  presence.Fallback(a.goos, start),
			Identity: a.cfg.Identities.Default,
			Fallback: true,
		}
	}

	if a.failures > 0 && a.last != nil {
		return Decision{Sample: s, Stale: true}
	}

	if !s.IsUnknown() && a.cfg.IsIgnored(s.Process) {
		return Decision{Sample: s, Clear: true}
	}
	if !s.IsUnknown() {
		s.Title = a.cfg.RedactTitle(s.Process, s.Title)
	}

	res := activity.Classify(s, a.rules)
	if a.isIdle(ctx) {
		res = activity.Idle()
	}

	elapsed := a.tracker.Update(res.Category, s.Process, now)
	in := presence.Input{
		Result:      res,
		StartedAt:   a.tracker.StartedAt(),
		Elapsed:     elapsed,
		Accumulated: a.tracker.Total(res.Category),
		Usage:       a.usage(ctx),
		Hostname:    a.hostname,
	}

	return Decision{
		Sample:   s,
		Result:   res,
		Payload:  presence.Build(in, a.display),
		Identity: a.cfg.ResolveIdentity(res.Identity, res.Category),
	}
}

// isIdle reports whether input has been idle past the configured timeout.
// Sources that cannot tell are never idle.
func (a *App) isIdle(ctx context.Context) bool {
	timeout := a.cfg.IdleTimeout()
	if timeout <= 0 {
		return false
	}
	idle, err := a.window.Idle(ctx)
	if err != nil {
		if !errors.Is(err, window.ErrUnsupported) {
			a.log.Debug("idle query failed", "error", err)
		}
		return false
	}
	return idle >= timeout
}

func (a *App) usage(ctx context.Context) *metrics.Usage {
	if !a.cfg.Behavior.EnableSystemInfo {
		return nil
	}
	u, err := a.metrics.Sample(ctx)
	if err != nil {
		a.log.Debug("metrics unavailable", "error", err)
		return nil
	}
	return &u
}

// ///////////////////////////////////////////////
// Wire Conversion
// ///////////////////////////////////////////////

// toDiscordActivity converts a payload to the IPC wire type, omitting empty
// optional sections.
func toDiscordActivity(p presence.Payload) *discord.Activity {
	da := &discord.Activity{
		Details: p.Details,
		State:   p.State,
	}
	if !p.Start.IsZero() {
		da.Timestamps = &discord.Timestamps{Start: p.Start.Unix()}
	}
	if p.LargeImage != "" || p.LargeText != "" || p.SmallImage != "" || p.SmallText != "" {
		da.Assets = &discord.Assets{
			LargeImage: p.LargeImage,
			LargeText:  p.LargeText,
			SmallImage: p.SmallImage,
			SmallText:  p.SmallText,
		}
	}
	for _, b := range p.Buttons {
		da.Buttons = append(da.Buttons, discord.Button{Label: b.Label, URL: b.URL})
	}
	return da
}
