package daemon

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"tools.zach/dev/statuscord/internal/activity"
	"tools.zach/dev/statuscord/internal/config"
	"tools.zach/dev/statuscord/internal/connection"
	"tools.zach/dev/statuscord/internal/discord"
	"tools.zach/dev/statuscord/internal/metrics"
	"tools.zach/dev/statuscord/internal/presence"
	"tools.zach/dev/statuscord/internal/window"
)

// ///////////////////////////////////////////////
// Fakes
// ///////////////////////////////////////////////

type fakeWindow struct {
	sample activity.Sample
	err    error
	idle   time.Duration
	idleEr error
}

func (w *fakeWindow) Name() string { return "fake" }

func (w *fakeWindow) Active(context.Context) (activity.Sample, error) {
	return w.sample, w.err
}

func (w *fakeWindow) Idle(context.Context) (time.Duration, error) {
	return w.idle, w.idleEr
}

type fakeSampler struct {
	usage metrics.Usage
	err   error
}

func (s fakeSampler) Sample(context.Context) (metrics.Usage, error) { return s.usage, s.err }

type nopTimer struct{}

func (nopTimer) Stop() bool { return true }

// fakeClock never fires timers; tests drive ticks directly.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(time.Duration, func()) connection.Timer { return nopTimer{} }

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeTransport struct {
	appID     string
	published chan *discord.Activity
	done      chan struct{}
	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeTransport(appID string) *fakeTransport {
	return &fakeTransport{
		appID:     appID,
		published: make(chan *discord.Activity, 16),
		done:      make(chan struct{}),
		closed:    make(chan struct{}),
	}
}

func (t *fakeTransport) Connect(context.Context) error { return nil }

func (t *fakeTransport) SetActivity(a *discord.Activity) error {
	t.published <- a
	return nil
}

func (t *fakeTransport) Close() error {
	t.closeOnce.Do(func() { close(t.closed) })
	return nil
}

func (t *fakeTransport) Done() <-chan struct{} { return t.done }
func (t *fakeTransport) Err() error            { return nil }

func quietLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Identities.Apps = map[string]string{config.DefaultIdentity: "100"}
	cfg.PriorityRules = nil
	cfg.CustomRules = []activity.Rule{
		{Match: "blender", Category: "design", Icon: "blender", Details: "Modelling"},
	}
	return cfg
}

type harness struct {
	app    *App
	win    *fakeWindow
	clock  *fakeClock
	dialed chan *fakeTransport
}

func newHarness(t *testing.T, cfg *config.Config, mutate func(*Options)) *harness {
	t.Helper()
	h := &harness{
		win:    &fakeWindow{sample: activity.Sample{Title: "scene.blend", Process: "blender"}},
		clock:  &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)},
		dialed: make(chan *fakeTransport, 4),
	}
	opts := Options{
		DataDir: t.TempDir(),
		Logger:  quietLog(),
		Window:  h.win,
		Metrics: fakeSampler{usage: metrics.Usage{CPU: 12, RAM: 34}},
		Dial: func(appID string) connection.Transport {
			tr := newFakeTransport(appID)
			h.dialed <- tr
			return tr
		},
		Clock:    h.clock,
		Hostname: "workstation",
		GOOS:     "linux",
	}
	if mutate != nil {
		mutate(&opts)
	}
	app, err := New(cfg, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.app = app
	return h
}

// ///////////////////////////////////////////////
// New Tests
// ///////////////////////////////////////////////

func TestNew_Validation(t *testing.T) {
	dial := func(string) connection.Transport { return newFakeTransport("") }
	win := &fakeWindow{}

	missing := testConfig()
	missing.Identities.Apps["default"] = ""

	tests := []struct {
		name    string
		cfg     *config.Config
		opts    Options
		wantErr string
	}{
		{"ok", testConfig(), Options{Window: win, Dial: dial}, ""},
		{"no window", testConfig(), Options{Dial: dial}, "window source"},
		{"no dialer", testConfig(), Options{Window: win}, "dialer"},
		{"missing app id", missing, Options{Window: win, Dial: dial}, "default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg, tt.opts)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("New: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestNew_CopiesConfig(t *testing.T) {
	cfg := testConfig()
	h := newHarness(t, cfg, nil)
	cfg.CustomRules = nil

	d := h.app.Decide(context.Background())
	if d.Result.Source != activity.SourceCustom {
		t.Errorf("source = %q, want custom (App must not alias caller's config)", d.Result.Source)
	}
}

// ///////////////////////////////////////////////
// Decide Tests
// ///////////////////////////////////////////////

func TestDecide_ClassifiesAndBuilds(t *testing.T) {
	h := newHarness(t, testConfig(), nil)

	d := h.app.Decide(context.Background())

	if d.Result.Source != activity.SourceCustom || d.Result.Category != "design" {
		t.Fatalf("result = %+v, want custom design", d.Result)
	}
	if d.Payload.Details != "Modelling" {
		t.Errorf("Details = %q, want Modelling", d.Payload.Details)
	}
	if d.Payload.State != "scene.blend | 0s" {
		t.Errorf("State = %q, want %q", d.Payload.State, "scene.blend | 0s")
	}
	if d.Payload.LargeImage != "blender" {
		t.Errorf("LargeImage = %q, want blender", d.Payload.LargeImage)
	}
	if d.Identity != config.DefaultIdentity {
		t.Errorf("Identity = %q, want %q", d.Identity, config.DefaultIdentity)
	}
	if d.Clear || d.Fallback || d.Stale {
		t.Errorf("unexpected flags: %+v", d)
	}
}

func TestDecide_TimerSurvivesSameActivity(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	ctx := context.Background()

	first := h.app.Decide(ctx)
	h.clock.advance(10 * time.Second)
	second := h.app.Decide(ctx)

	if !second.Payload.Start.Equal(first.Payload.Start) {
		t.Errorf("Start moved from %v to %v for the same activity", first.Payload.Start, second.Payload.Start)
	}
	if !strings.Contains(second.Payload.State, "10s") {
		t.Errorf("State = %q, want elapsed 10s", second.Payload.State)
	}
	if got := h.app.Tracker().Total("design"); got != 20*time.Second {
		t.Errorf("Total(design) = %v, want 20s", got)
	}

	h.clock.advance(10 * time.Second)
	h.win.sample = activity.Sample{Title: "notes", Process: "gedit"}
	third := h.app.Decide(ctx)
	if !third.Payload.Start.Equal(h.clock.Now()) {
		t.Errorf("Start = %v, want reset to %v on activity change", third.Payload.Start, h.clock.Now())
	}
}

func TestDecide_IgnoredProcessClears(t *testing.T) {
	cfg := testConfig()
	cfg.Privacy.Ignore = []string{"keepass*"}
	h := newHarness(t, cfg, nil)
	h.win.sample = activity.Sample{Title: "Passwords.kdbx", Process: "KeePassXC"}

	d := h.app.Decide(context.Background())
	if !d.Clear {
		t.Fatalf("Clear = false, want true for ignored process")
	}
	if len(h.app.Tracker().Totals()) != 0 {
		t.Errorf("ignored tick must not reach the tracker")
	}
}

func TestDecide_RedactsTitle(t *testing.T) {
	cfg := testConfig()
	cfg.Privacy.RedactTitles = []string{"blender"}
	h := newHarness(t, cfg, nil)

	d := h.app.Decide(context.Background())
	if d.Sample.Title != "Private" {
		t.Errorf("title = %q, want Private", d.Sample.Title)
	}
	if !strings.HasPrefix(d.Payload.State, "Private | ") {
		t.Errorf("State = %q, want redacted title", d.Payload.State)
	}
}

func TestDecide_Idle(t *testing.T) {
	tests := []struct {
		name    string
		timeout int
		idle    time.Duration
		idleErr error
		want    string
	}{
		{"past timeout", 5, 6 * time.Minute, nil, "idle"},
		{"at timeout", 5, 5 * time.Minute, nil, "idle"},
		{"active", 5, time.Minute, nil, "design"},
		{"disabled", 0, time.Hour, nil, "design"},
		{"unsupported", 5, 0, window.ErrUnsupported, "design"},
		{"query error", 5, time.Hour, errors.New("dbus gone"), "design"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Behavior.IdleTimeoutMinutes = tt.timeout
			h := newHarness(t, cfg, nil)
			h.win.idle = tt.idle
			h.win.idleEr = tt.idleErr

			d := h.app.Decide(context.Background())
			if d.Result.Category != tt.want {
				t.Errorf("category = %q, want %q", d.Result.Category, tt.want)
			}
		})
	}
}

func TestDecide_SystemInfo(t *testing.T) {
	tests := []struct {
		name    string
		enabled bool
		sampler fakeSampler
		want    string
	}{
		{"enabled", true, fakeSampler{usage: metrics.Usage{CPU: 12, RAM: 34}}, "scene.blend | 0s | CPU: 12%, RAM: 34%"},
		{"disabled", false, fakeSampler{usage: metrics.Usage{CPU: 12, RAM: 34}}, "scene.blend | 0s"},
		{"sampler error", true, fakeSampler{err: errors.New("no /proc")}, "scene.blend | 0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Behavior.EnableSystemInfo = tt.enabled
			h := newHarness(t, cfg, func(o *Options) { o.Metrics = tt.sampler })

			d := h.app.Decide(context.Background())
			if d.Payload.State != tt.want {
				t.Errorf("State = %q, want %q", d.Payload.State, tt.want)
			}
		})
	}
}

func TestDecide_DetailedStats(t *testing.T) {
	cfg := testConfig()
	cfg.Behavior.EnableDetailedStats = true
	cfg.Display.SmallImage = "stats"
	h := newHarness(t, cfg, nil)

	d := h.app.Decide(context.Background())
	if d.Payload.SmallImage != "stats" {
		t.Errorf("SmallImage = %q, want stats", d.Payload.SmallImage)
	}
	if d.Payload.SmallText != "10s total on workstation" {
		t.Errorf("SmallText = %q, want %q", d.Payload.SmallText, "10s total on workstation")
	}
}

func TestDecide_Identity(t *testing.T) {
	cfg := testConfig()
	cfg.Identities.Apps["games"] = "200"
	cfg.Identities.Apps["art"] = "300"
	cfg.Identities.Categories = map[string]string{"gaming": "games"}
	cfg.CustomRules = []activity.Rule{
		{Match: "krita", Category: "gaming", Icon: "krita", Details: "Painting", Identity: "art"},
		{Match: "factorio", Category: "gaming", Icon: "factorio", Details: "Building"},
		{Match: "blender", Category: "design", Icon: "blender", Details: "Modelling"},
	}

	tests := []struct {
		name   string
		sample activity.Sample
		want   string
	}{
		{"rule identity wins", activity.Sample{Title: "canvas", Process: "krita"}, "art"},
		{"category mapping", activity.Sample{Title: "base", Process: "factorio"}, "games"},
		{"default", activity.Sample{Title: "scene", Process: "blender"}, "default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, cfg, nil)
			h.win.sample = tt.sample
			if got := h.app.Decide(context.Background()).Identity; got != tt.want {
				t.Errorf("Identity = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecide_FailuresFallBack(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	h.win.err = errors.New("xdotool: exit status 1")
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		d := h.app.Decide(ctx)
		if d.Fallback {
			t.Fatalf("failure %d: fallback too early", i)
		}
		if d.Result.Details != "Using Unknown" {
			t.Errorf("failure %d: Details = %q, want generic unknown classification", i, d.Result.Details)
		}
	}

	d := h.app.Decide(ctx)
	if !d.Fallback {
		t.Fatal("third failure: want fallback")
	}
	if d.Payload.Details != "Online" || d.Payload.State != "Using Linux" {
		t.Errorf("payload = %q / %q, want Online / Using Linux", d.Payload.Details, d.Payload.State)
	}

	h.win.err = nil
	if d := h.app.Decide(ctx); d.Fallback || d.Result.Category != "design" {
		t.Errorf("after recovery: %+v, want classification", d.Result)
	}
}

func TestDecide_FailureKeepsLastPayload(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	ctx := context.Background()

	// Not connected: publish fails but the payload is remembered.
	h.app.Tick(ctx)
	if h.app.last == nil {
		t.Fatal("last payload not recorded")
	}

	h.win.err = errors.New("hyprctl: exit status 1")
	if d := h.app.Decide(ctx); !d.Stale {
		t.Errorf("Stale = false, want previous payload kept after one failure")
	}
}

func TestDecide_NoWindowIsClassified(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	ctx := context.Background()

	h.app.Tick(ctx)
	if h.app.last == nil {
		t.Fatal("last payload not recorded")
	}

	h.win.err = window.ErrNoWindow
	for i := range 4 {
		h.clock.advance(10 * time.Second)
		d := h.app.Decide(ctx)
		if d.Stale || d.Fallback {
			t.Fatalf("tick %d: stale=%v fallback=%v, want a classified Unknown sample", i, d.Stale, d.Fallback)
		}
		if d.Payload.Details != "Using Unknown" {
			t.Errorf("tick %d: Details = %q, want Using Unknown", i, d.Payload.Details)
		}
	}
	if h.app.failures != 0 {
		t.Errorf("failures = %d, want 0 for missing foreground window", h.app.failures)
	}

	// The session restarted at the first Unknown tick and kept running.
	want := time.Date(2025, 3, 1, 9, 0, 10, 0, time.UTC)
	if got := h.app.tracker.StartedAt(); !got.Equal(want) {
		t.Errorf("StartedAt = %v, want %v", got, want)
	}
	if cat, proc := h.app.tracker.Current(); proc != "Unknown" {
		t.Errorf("tracker current = %q/%q, want Unknown process", cat, proc)
	}
}

// ///////////////////////////////////////////////
// Reload Tests
// ///////////////////////////////////////////////

func TestReload(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	path := filepath.Join(h.app.dataDir, "config.toml")

	next := testConfig()
	next.CustomRules = []activity.Rule{
		{Match: "blender", Category: "3d", Icon: "blender", Details: "Rendering"},
	}
	next.Privacy.Ignore = []string{"gedit"}
	next.Behavior.PollIntervalSeconds = 99
	if err := next.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	h.app.Reload()
	d := h.app.Decide(context.Background())
	if d.Result.Category != "3d" || d.Payload.Details != "Rendering" {
		t.Errorf("after reload: %+v, want reloaded rule", d.Result)
	}
	if !h.app.cfg.IsIgnored("gedit") {
		t.Error("privacy patterns not reloaded")
	}
	if h.app.cfg.Behavior.PollIntervalSeconds != 10 {
		t.Errorf("poll interval = %d, want unchanged 10", h.app.cfg.Behavior.PollIntervalSeconds)
	}
}

func TestReload_InvalidKeepsRules(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	path := filepath.Join(h.app.dataDir, "config.toml")
	if err := os.WriteFile(path, []byte("custom_rules = [ broken"), 0o644); err != nil {
		t.Fatal(err)
	}

	h.app.Reload()
	if d := h.app.Decide(context.Background()); d.Result.Category != "design" {
		t.Errorf("category = %q, want previous rules kept", d.Result.Category)
	}
}

// ///////////////////////////////////////////////
// Run Tests
// ///////////////////////////////////////////////

func TestRun_PublishesOnReadyAndStops(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() { errc <- h.app.Run(ctx) }()

	var tr *fakeTransport
	select {
	case tr = <-h.dialed:
	case <-time.After(2 * time.Second):
		t.Fatal("no connection dialed")
	}
	if tr.appID != "100" {
		t.Errorf("dialed app id %q, want 100", tr.appID)
	}

	select {
	case a := <-tr.published:
		if a == nil || a.Details != "Modelling" {
			t.Fatalf("published %+v, want Modelling", a)
		}
		if a.Timestamps == nil || a.Timestamps.Start != h.clock.Now().Unix() {
			t.Errorf("timestamps = %+v, want start %d", a.Timestamps, h.clock.Now().Unix())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("nothing published on ready")
	}

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	select {
	case <-tr.closed:
	default:
		t.Error("transport not closed on shutdown")
	}
	if h.app.Manager().State() != connection.Stopped {
		t.Errorf("state = %v, want Stopped", h.app.Manager().State())
	}
}

func TestRun_ReloadSignal(t *testing.T) {
	reloads := make(chan struct{}, 1)
	h := newHarness(t, testConfig(), func(o *Options) { o.Reloads = reloads })

	next := testConfig()
	next.CustomRules = []activity.Rule{{Match: "blender", Category: "3d", Icon: "blender", Details: "Rendering"}}
	if err := next.Save(filepath.Join(h.app.dataDir, "config.toml")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- h.app.Run(ctx) }()

	tr := <-h.dialed
	<-tr.published
	reloads <- struct{}{}

	// A second ready tick is not available, so wait for the loop to drain
	// the reload by cancelling after the channel empties.
	deadline := time.After(2 * time.Second)
	for len(reloads) > 0 {
		select {
		case <-deadline:
			t.Fatal("reload not consumed")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-errc

	if d := h.app.Decide(context.Background()); d.Result.Category != "3d" {
		t.Errorf("category = %q, want reloaded rule", d.Result.Category)
	}
}

// ///////////////////////////////////////////////
// Conversion Tests
// ///////////////////////////////////////////////

func TestToDiscordActivity(t *testing.T) {
	start := time.Unix(1700000000, 0)

	tests := []struct {
		name    string
		in      presence.Payload
		assets  bool
		stamps  bool
		buttons int
	}{
		{"full", presence.Payload{
			Details: "d", State: "s", LargeImage: "l", LargeText: "lt", Start: start,
			Buttons: []presence.Button{{Label: "Site", URL: "https://example.com"}},
		}, true, true, 1},
		{"bare", presence.Payload{Details: "d", State: "s"}, false, false, 0},
		{"small only", presence.Payload{SmallImage: "x"}, true, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := toDiscordActivity(tt.in)
			if a.Details != tt.in.Details || a.State != tt.in.State {
				t.Errorf("text = %q/%q", a.Details, a.State)
			}
			if (a.Assets != nil) != tt.assets {
				t.Errorf("assets = %+v, want present=%v", a.Assets, tt.assets)
			}
			if (a.Timestamps != nil) != tt.stamps {
				t.Errorf("timestamps = %+v, want present=%v", a.Timestamps, tt.stamps)
			}
			if tt.stamps && a.Timestamps.Start != start.Unix() {
				t.Errorf("start = %d, want %d", a.Timestamps.Start, start.Unix())
			}
			if len(a.Buttons) != tt.buttons {
				t.Errorf("buttons = %d, want %d", len(a.Buttons), tt.buttons)
			}
		})
	}
}
