// Package daemon wires the window source, classifier, session tracker and
// payload builder to the connection manager.
//
// An [App] is the application context: it owns the loaded configuration,
// the rule snapshot and every piece of mutable state, and it is driven by a
// single goroutine in [App.Run]. The connection manager's timer callbacks,
// config reloads and shutdown are all serialized through that loop.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"tools.zach/dev/statuscord/internal/activity"
	"tools.zach/dev/statuscord/internal/config"
	"tools.zach/dev/statuscord/internal/connection"
	"tools.zach/dev/statuscord/internal/discord"
	"tools.zach/dev/statuscord/internal/metrics"
	"tools.zach/dev/statuscord/internal/presence"
	"tools.zach/dev/statuscord/internal/session"
	"tools.zach/dev/statuscord/internal/window"
)

// UsageSampler reads system load. [metrics.Sampler] satisfies it.
type UsageSampler interface {
	Sample(ctx context.Context) (metrics.Usage, error)
}

// Options supplies the collaborators of an [App]. Window and Dial are
// required; everything else has a usable default.
type Options struct {
	// DataDir is re-read on reload signals.
	DataDir string
	Logger  *slog.Logger
	Window  window.Source
	Metrics UsageSampler
	Dial    connection.Dialer
	// PackRules are rule pack rules evaluated ahead of the built-in table.
	PackRules []activity.Rule
	// Reloads signals that config.toml changed.
	Reloads <-chan struct{}
	Clock   connection.Clock
	// Hostname is shown with detailed stats; empty omits it.
	Hostname string
	// GOOS names the platform on the fallback card.
	GOOS string
}

// App is the running presence broadcaster.
type App struct {
	cfg     config.Config
	dataDir string
	log     *slog.Logger
	clock   connection.Clock

	window   window.Source
	metrics  UsageSampler
	hostname string
	goos     string

	pack    []activity.Rule
	rules   activity.RuleSet
	display presence.Options
	reloads <-chan struct{}

	tracker *session.Tracker
	manager *connection.Manager

	// ctx is the Run context, handed to queries made from timer callbacks.
	ctx       context.Context
	startedAt time.Time
	// failures counts consecutive failed window queries.
	failures int
	// cleared is true once presence was cleared for an ignored process.
	cleared bool
	// last is the most recent published activity, replayed on reconnect.
	last *discord.Activity
}

// New builds an App from a validated configuration.
func New(cfg *config.Config, opts Options) (*App, error) {
	if opts.Window == nil {
		return nil, errors.New("daemon: window source is required")
	}
	if opts.Dial == nil {
		return nil, errors.New("daemon: dialer is required")
	}
	if missing := cfg.MissingAppIDs(); len(missing) > 0 {
		return nil, fmt.Errorf("no Discord application id for identities: %s", strings.Join(missing, ", "))
	}

	a := &App{
		cfg:      *cfg,
		dataDir:  opts.DataDir,
		log:      opts.Logger,
		clock:    opts.Clock,
		window:   opts.Window,
		metrics:  opts.Metrics,
		hostname: opts.Hostname,
		goos:     opts.GOOS,
		pack:     opts.PackRules,
		reloads:  opts.Reloads,
		ctx:      context.Background(),
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	if a.clock == nil {
		a.clock = connection.SystemClock{}
	}
	if a.metrics == nil {
		a.metrics = metrics.Sampler{}
	}
	if a.goos == "" {
		a.goos = runtime.GOOS
	}
	a.rules = a.cfg.Rules(a.pack)
	a.display = displayOptions(&a.cfg)
	a.tracker = session.NewTracker(a.cfg.PollInterval())
	a.manager = connection.New(a.managerConfig(), opts.Dial,
		connection.WithClock(a.clock),
		connection.WithLogger(a.log),
	)
	return a, nil
}

func (a *App) managerConfig() connection.Config {
	c := &a.cfg
	return connection.Config{
		Apps:            c.Identities.Apps,
		DefaultIdentity: c.Identities.Default,
		BackoffBase:     seconds(c.Reconnect.BaseSeconds),
		BackoffFactor:   c.Reconnect.Factor,
		BackoffMax:      seconds(c.Reconnect.MaxSeconds),
		SwitchDebounce:  seconds(c.Switching.DebounceSeconds),
		SwitchCooldown:  seconds(c.Switching.CooldownSeconds),
		PollInterval:    c.PollInterval(),
		Poll:            func() { a.Tick(a.ctx) },
		OnReady:         a.ready,
	}
}

func displayOptions(c *config.Config) presence.Options {
	opts := presence.Options{
		DetailedStats: c.Behavior.EnableDetailedStats,
		SystemInfo:    c.Behavior.EnableSystemInfo,
		SmallImage:    c.Display.SmallImage,
	}
	for _, b := range c.Display.Buttons {
		opts.Buttons = append(opts.Buttons, presence.Button{Label: b.Label, URL: b.URL})
	}
	return opts
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// Manager exposes the connection manager for status reporting.
func (a *App) Manager() *connection.Manager { return a.manager }

// Tracker exposes the session tracker.
func (a *App) Tracker() *session.Tracker { return a.tracker }

// ///////////////////////////////////////////////
// Loop
// ///////////////////////////////////////////////

// Run connects and serves until ctx is cancelled, then stops the manager.
// Every callback touching App state runs on the calling goroutine.
func (a *App) Run(ctx context.Context) error {
	a.ctx = ctx
	a.startedAt = a.clock.Now()
	a.log.Info("presence loop starting",
		"window_source", a.window.Name(),
		"identity", a.cfg.Identities.Default,
		"poll_interval", a.cfg.PollInterval(),
	)
	a.manager.Start()

	for {
		select {
		case <-ctx.Done():
			err := a.manager.Stop()
			if err != nil {
				a.log.Warn("closing discord connection", "error", err)
			}
			a.logTotals()
			return nil
		case fn := <-a.manager.Queue():
			fn()
		case <-a.reloads:
			a.Reload()
		}
	}
}

// ready publishes as soon as a connection comes up. After a reconnect or
// identity switch the last payload is replayed rather than running an extra
// tick, so category totals only grow on poll ticks.
func (a *App) ready() {
	if a.last == nil {
		a.Tick(a.ctx)
		return
	}
	if err := a.manager.Publish(a.last); err != nil {
		a.log.Debug("replaying presence failed", "error", err)
	}
}

// Reload re-reads config.toml and swaps in its rules and privacy settings.
// Everything else is fixed for the process lifetime. An invalid file is
// logged and the previous rules stay active.
func (a *App) Reload() {
	cfg, err := config.Reload(a.dataDir, a.log)
	if err != nil {
		a.log.Warn("config reload rejected, keeping previous rules", "error", err)
		return
	}
	a.cfg.PriorityRules = cfg.PriorityRules
	a.cfg.CustomRules = cfg.CustomRules
	a.cfg.Privacy = cfg.Privacy
	a.rules = a.cfg.Rules(a.pack)
	a.log.Info("rules reloaded",
		"priority_rules", len(a.cfg.PriorityRules),
		"custom_rules", len(a.cfg.CustomRules),
	)
}

func (a *App) logTotals() {
	for _, t := range a.tracker.Totals() {
		a.log.Info("category total", "category", t.Category, "duration", presence.FormatDuration(t.Total))
	}
}
