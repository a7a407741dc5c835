// Package config provides configuration loading and defaults for the
// statuscord daemon.
//
// Configuration is loaded from config.toml in the user's data directory.
// A missing file is replaced by an annotated default, older schema versions
// are migrated in place, and every load is validated.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/bmatcuk/doublestar/v4"
	"tools.zach/dev/statuscord/internal/activity"
	"tools.zach/dev/statuscord/internal/atomicfile"
	"tools.zach/dev/statuscord/internal/migrate"
	"tools.zach/dev/statuscord/internal/paths"
)

// DefaultAppID is the Discord application bound to the "default" identity in
// a fresh config. Release builds set it with
// -ldflags "-X tools.zach/dev/statuscord/internal/config.DefaultAppID=...".
var DefaultAppID = ""

// DefaultIdentity is the identity key written into a fresh config.
const DefaultIdentity = "default"

// Window sources accepted by behavior.window_source.
var WindowSources = []string{"auto", "hyprland", "gnome", "x11", "macos", "windows"}

// ///////////////////////////////////////////////
// Configuration Types
// ///////////////////////////////////////////////

// Config represents the top-level application configuration.
type Config struct {
	// Version is the config schema version used for migrations.
	Version int `toml:"version"`
	// Identities maps identity keys to Discord applications.
	Identities IdentitiesConfig `toml:"identities"`
	// Display holds presence card settings.
	Display DisplayConfig `toml:"display"`
	// Behavior holds polling and idle settings.
	Behavior BehaviorConfig `toml:"behavior"`
	// Switching holds identity switch timing.
	Switching SwitchingConfig `toml:"switching"`
	// Reconnect holds the Discord reconnect backoff.
	Reconnect ReconnectConfig `toml:"reconnect"`
	// Privacy holds per-process suppression and title redaction.
	Privacy PrivacyConfig `toml:"privacy"`
	// RulePack selects an optional external rule pack.
	RulePack RulePackConfig `toml:"rule_pack"`
	// Log holds logging settings.
	Log LogConfig `toml:"log"`
	// Update holds release check settings.
	Update UpdateConfig `toml:"update"`
	// PriorityRules are matched first and refined per application.
	PriorityRules []activity.Rule `toml:"priority_rules"`
	// CustomRules are matched after priority rules and used verbatim.
	CustomRules []activity.Rule `toml:"custom_rules,omitempty"`
}

// IdentitiesConfig routes categories to Discord applications.
type IdentitiesConfig struct {
	// Default is the identity used when nothing else selects one.
	Default string `toml:"default"`
	// Apps maps identity keys to Discord application IDs.
	Apps map[string]string `toml:"apps"`
	// Categories maps activity categories to identity keys.
	Categories map[string]string `toml:"categories,omitempty"`
}

// ButtonConfig is one presence card button.
type ButtonConfig struct {
	Label string `toml:"label"`
	URL   string `toml:"url"`
}

// DisplayConfig holds presence card settings.
type DisplayConfig struct {
	// SmallImage is the small overlay asset key; empty disables it.
	SmallImage string `toml:"small_image,omitempty"`
	// Buttons are shown on the card, at most two.
	Buttons []ButtonConfig `toml:"buttons,omitempty"`
}

// BehaviorConfig holds polling and idle settings.
type BehaviorConfig struct {
	// PollIntervalSeconds is the time between presence updates.
	PollIntervalSeconds int `toml:"poll_interval_seconds"`
	// IdleTimeoutMinutes marks the user idle after this much input
	// inactivity. Zero disables idle detection.
	IdleTimeoutMinutes int `toml:"idle_timeout_minutes"`
	// EnableDetailedStats adds accumulated category time to the small image tooltip.
	EnableDetailedStats bool `toml:"enable_detailed_stats"`
	// EnableSystemInfo appends CPU and RAM usage to the state line.
	EnableSystemInfo bool `toml:"enable_system_info"`
	// FallbackAfterFailures is the number of consecutive failed window
	// queries before the generic fallback card is shown.
	FallbackAfterFailures int `toml:"fallback_after_failures"`
	// WindowSource forces a foreground window backend.
	WindowSource string `toml:"window_source"`
}

// SwitchingConfig holds identity switch timing.
type SwitchingConfig struct {
	// DebounceSeconds delays a switch; newer requests replace pending ones.
	DebounceSeconds int `toml:"debounce_seconds"`
	// CooldownSeconds is the minimum time between completed switches.
	CooldownSeconds int `toml:"cooldown_seconds"`
}

// ReconnectConfig holds the reconnect backoff.
type ReconnectConfig struct {
	// BaseSeconds is the delay before the first retry.
	BaseSeconds int `toml:"base_seconds"`
	// Factor multiplies the delay after each failure.
	Factor float64 `toml:"factor"`
	// MaxSeconds caps the delay.
	MaxSeconds int `toml:"max_seconds"`
}

// PrivacyConfig holds per-process suppression and title redaction.
type PrivacyConfig struct {
	// Ignore lists glob patterns of process names for which nothing is published.
	Ignore []string `toml:"ignore"`
	// RedactTitles lists glob patterns of process names whose window titles
	// are replaced by RedactedText before classification.
	RedactTitles []string `toml:"redact_titles"`
	// RedactedText replaces redacted window titles.
	RedactedText string `toml:"redacted_text"`
}

// RulePackConfig selects an optional external rule pack.
type RulePackConfig struct {
	// Source is "builtin", "url", or "file".
	Source string `toml:"source"`
	// URL is fetched when Source is "url".
	URL string `toml:"url,omitempty"`
	// File is read when Source is "file".
	File string `toml:"file,omitempty"`
	// TimeoutSeconds bounds each fetch attempt.
	TimeoutSeconds int `toml:"timeout_seconds"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	Level string `toml:"level"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation.
	MaxSizeMB int `toml:"max_size_mb"`
	// Console mirrors log lines to stderr.
	Console bool `toml:"console"`
}

// UpdateConfig holds release check settings.
type UpdateConfig struct {
	// Check enables the startup release check.
	Check bool `toml:"check"`
}

// ///////////////////////////////////////////////
// Default Configuration
// ///////////////////////////////////////////////

// DefaultPriorityRules enables the per-application refinements for the
// applications they know about.
func DefaultPriorityRules() []activity.Rule {
	return []activity.Rule{
		{Match: "spotify", Category: "music", Icon: "spotify", Details: "Listening to Music"},
		{Match: "slack", Category: "chat", Icon: "slack", Details: "Chatting"},
		{Match: "steam", Category: "gaming", Icon: "steam", Details: "Gaming"},
		{Match: "chrome", Category: "browsing", Icon: "chrome", Details: "Browsing the Web"},
		{Match: "firefox", Category: "browsing", Icon: "firefox", Details: "Browsing the Web"},
		{Match: "msedge", Category: "browsing", Icon: "edge", Details: "Browsing the Web"},
		{Match: "brave", Category: "browsing", Icon: "brave", Details: "Browsing the Web"},
		{Match: "code", Category: "coding", Icon: "vscode", Details: "Coding"},
	}
}

// DefaultConfig returns a Config populated with defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: migrate.Config.CurrentVersion,
		Identities: IdentitiesConfig{
			Default: DefaultIdentity,
			Apps:    map[string]string{DefaultIdentity: DefaultAppID},
		},
		Behavior: BehaviorConfig{
			PollIntervalSeconds:   10,
			IdleTimeoutMinutes:    0,
			EnableDetailedStats:   false,
			EnableSystemInfo:      false,
			FallbackAfterFailures: 3,
			WindowSource:          "auto",
		},
		Switching: SwitchingConfig{
			DebounceSeconds: 3,
			CooldownSeconds: 15,
		},
		Reconnect: ReconnectConfig{
			BaseSeconds: 15,
			Factor:      1.5,
			MaxSeconds:  120,
		},
		Privacy: PrivacyConfig{
			Ignore:       []string{},
			RedactTitles: []string{},
			RedactedText: "Private",
		},
		RulePack: RulePackConfig{
			Source:         "builtin",
			TimeoutSeconds: 10,
		},
		Log: LogConfig{
			Level:     "info",
			MaxSizeMB: 10,
			Console:   true,
		},
		Update: UpdateConfig{
			Check: true,
		},
		PriorityRules: DefaultPriorityRules(),
	}
}

// ///////////////////////////////////////////////
// PeekVersion
// ///////////////////////////////////////////////

// PeekVersion reads just the version field from raw TOML bytes.
// Returns 1 if the version field is missing or zero.
func PeekVersion(data []byte) int {
	var v struct {
		Version int `toml:"version"`
	}
	if err := toml.Unmarshal(data, &v); err != nil {
		return 1
	}
	if v.Version == 0 {
		return 1
	}
	return v.Version
}

// ///////////////////////////////////////////////
// Loading and Saving
// ///////////////////////////////////////////////

// Load reads dataDir/config.toml. A missing file is created from
// [RenderDefault] and the defaults are returned. Older schema versions are
// migrated, backed up to config.toml.bak, and re-saved.
func Load(dataDir string, log *slog.Logger) (*Config, error) {
	if log == nil {
		log = slog.Default()
	}
	path := paths.DataDir{Root: dataDir}.Config()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		if err := WriteDefault(path); err != nil {
			log.Warn("failed to write default config", "path", path, "error", err)
		} else {
			log.Info("wrote default config", "path", path)
		}
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	version := PeekVersion(data)
	if migrate.Config.NeedsMigration(version) {
		if backupErr := atomicfile.Write(path+".bak", data, 0o644); backupErr != nil {
			log.Warn("failed to write config backup", "error", backupErr)
		}
	}

	cfg, migrated, err := Decode(data, log)
	if err != nil {
		return nil, err
	}

	if migrated {
		if err := cfg.Save(path); err != nil {
			log.Warn("failed to save migrated config", "error", err)
		}
	}
	return cfg, nil
}

// Reload reads and validates dataDir/config.toml without writing anything.
// It is used for hot reloads, where a missing or broken file is an error.
func Reload(dataDir string, log *slog.Logger) (*Config, error) {
	data, err := os.ReadFile(paths.DataDir{Root: dataDir}.Config())
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	cfg, _, err := Decode(data, log)
	return cfg, err
}

// Decode migrates, parses and validates raw config bytes. It reports
// whether a migration was applied.
func Decode(data []byte, log *slog.Logger) (*Config, bool, error) {
	if log == nil {
		log = slog.Default()
	}

	version := PeekVersion(data)
	migrated := false
	if err := migrate.Config.Check(version); err != nil {
		return nil, false, fmt.Errorf("migrate config: %w", err)
	}
	if migrate.Config.NeedsMigration(version) {
		var err error
		data, _, err = migrate.Config.Run(data, version, log)
		if err != nil {
			return nil, false, fmt.Errorf("migrate config: %w", err)
		}
		migrated = true
	}

	cfg := DefaultConfig()
	// The decoder merges into existing maps and array elements, so defaults
	// for these are restored only when the file leaves them out.
	defaultRules, defaultApps := cfg.PriorityRules, cfg.Identities.Apps
	cfg.PriorityRules, cfg.Identities.Apps = nil, nil

	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, false, fmt.Errorf("parse config: %w", err)
	}
	if !md.IsDefined("priority_rules") {
		cfg.PriorityRules = defaultRules
	}
	if !md.IsDefined("identities", "apps") {
		cfg.Identities.Apps = defaultApps
	}
	for _, key := range md.Undecoded() {
		log.Warn("unknown config key", "key", key.String())
	}
	cfg.Version = migrate.Config.CurrentVersion

	if err := cfg.Validate(); err != nil {
		return nil, false, fmt.Errorf("validate config: %w", err)
	}
	return cfg, migrated, nil
}

// Save writes the config to disk as TOML using atomic file write.
func (c *Config) Save(path string) error {
	return atomicfile.WriteFunc(path, 0o644, func(w io.Writer) error {
		if err := toml.NewEncoder(w).Encode(c); err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}
		return nil
	})
}

// WriteDefault writes the annotated default config to path.
func WriteDefault(path string) error {
	data, err := RenderDefault()
	if err != nil {
		return err
	}
	return atomicfile.Write(path, data, 0o644)
}

// ///////////////////////////////////////////////
// Validation
// ///////////////////////////////////////////////

// validLogLevels is the set of accepted log level strings.
var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true,
}

// Validate checks that all configuration values are within acceptable ranges
// and that every referenced identity has an application entry.
func (c *Config) Validate() error {
	if c.Behavior.PollIntervalSeconds <= 0 {
		return fmt.Errorf("poll_interval_seconds must be > 0, got %d", c.Behavior.PollIntervalSeconds)
	}
	if c.Behavior.IdleTimeoutMinutes < 0 {
		return fmt.Errorf("idle_timeout_minutes must be >= 0, got %d", c.Behavior.IdleTimeoutMinutes)
	}
	if c.Behavior.FallbackAfterFailures <= 0 {
		return fmt.Errorf("fallback_after_failures must be > 0, got %d", c.Behavior.FallbackAfterFailures)
	}
	if !slices.Contains(WindowSources, c.Behavior.WindowSource) {
		return fmt.Errorf("invalid window_source %q: must be one of %s", c.Behavior.WindowSource, strings.Join(WindowSources, ", "))
	}

	if c.Switching.DebounceSeconds < 0 {
		return fmt.Errorf("debounce_seconds must be >= 0, got %d", c.Switching.DebounceSeconds)
	}
	if c.Switching.CooldownSeconds < 0 {
		return fmt.Errorf("cooldown_seconds must be >= 0, got %d", c.Switching.CooldownSeconds)
	}

	if c.Reconnect.BaseSeconds <= 0 {
		return fmt.Errorf("reconnect.base_seconds must be > 0, got %d", c.Reconnect.BaseSeconds)
	}
	if c.Reconnect.Factor < 1 {
		return fmt.Errorf("reconnect.factor must be >= 1, got %g", c.Reconnect.Factor)
	}
	if c.Reconnect.MaxSeconds < c.Reconnect.BaseSeconds {
		return fmt.Errorf("reconnect.max_seconds (%d) must be >= base_seconds (%d)", c.Reconnect.MaxSeconds, c.Reconnect.BaseSeconds)
	}

	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log.level %q: must be trace, debug, info, warn, or error", c.Log.Level)
	}

	switch c.RulePack.Source {
	case "builtin":
	case "url":
		if c.RulePack.URL == "" {
			return errors.New("rule_pack.url is required when source is \"url\"")
		}
	case "file":
		if c.RulePack.File == "" {
			return errors.New("rule_pack.file is required when source is \"file\"")
		}
	default:
		return fmt.Errorf("invalid rule_pack.source %q: must be builtin, url, or file", c.RulePack.Source)
	}

	if len(c.Display.Buttons) > 2 {
		return fmt.Errorf("at most 2 buttons allowed, got %d", len(c.Display.Buttons))
	}
	for i, b := range c.Display.Buttons {
		if b.Label == "" || b.URL == "" {
			return fmt.Errorf("button %d needs both label and url", i+1)
		}
	}

	if err := c.validateIdentities(); err != nil {
		return err
	}
	for _, p := range append(append([]string{}, c.Privacy.Ignore...), c.Privacy.RedactTitles...) {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid privacy pattern %q", p)
		}
	}
	return nil
}

func (c *Config) validateIdentities() error {
	if c.Identities.Default == "" {
		return errors.New("identities.default must be set")
	}
	if _, ok := c.Identities.Apps[c.Identities.Default]; !ok {
		return fmt.Errorf("default identity %q has no entry in identities.apps", c.Identities.Default)
	}
	for cat, id := range c.Identities.Categories {
		if _, ok := c.Identities.Apps[id]; !ok {
			return fmt.Errorf("category %q routes to identity %q which has no entry in identities.apps", cat, id)
		}
	}
	for _, rules := range [][]activity.Rule{c.PriorityRules, c.CustomRules} {
		for _, r := range rules {
			if r.Identity == "" {
				continue
			}
			if _, ok := c.Identities.Apps[r.Identity]; !ok {
				return fmt.Errorf("rule %q routes to identity %q which has no entry in identities.apps", r.Match, r.Identity)
			}
		}
	}
	return nil
}

// MissingAppIDs lists identities with an empty application ID, sorted.
func (c *Config) MissingAppIDs() []string {
	var out []string
	for id, app := range c.Identities.Apps {
		if strings.TrimSpace(app) == "" {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

// ///////////////////////////////////////////////
// Accessors
// ///////////////////////////////////////////////

// PollInterval returns the poll period.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Behavior.PollIntervalSeconds) * time.Second
}

// IdleTimeout returns the idle threshold; zero disables idle detection.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.Behavior.IdleTimeoutMinutes) * time.Minute
}

// Rules returns the rule snapshot for classification. extra holds rule
// pack rules evaluated ahead of the compiled-in table.
func (c *Config) Rules(extra []activity.Rule) activity.RuleSet {
	return activity.RuleSet{
		Priority: c.PriorityRules,
		Custom:   c.CustomRules,
		Extra:    extra,
	}
}

// ResolveIdentity picks the identity for a classification: the matched
// rule's identity, then the category mapping, then the default.
func (c *Config) ResolveIdentity(ruleIdentity, category string) string {
	if ruleIdentity != "" {
		if _, ok := c.Identities.Apps[ruleIdentity]; ok {
			return ruleIdentity
		}
	}
	if id, ok := c.Identities.Categories[category]; ok {
		return id
	}
	return c.Identities.Default
}

// ///////////////////////////////////////////////
// Privacy Helpers
// ///////////////////////////////////////////////

// IsIgnored reports whether process matches any ignore pattern.
func (c *Config) IsIgnored(process string) bool {
	return matchAny(c.Privacy.Ignore, process)
}

// RedactTitle returns the replacement title when process matches a
// redact_titles pattern, or title unchanged.
func (c *Config) RedactTitle(process, title string) string {
	if matchAny(c.Privacy.RedactTitles, process) {
		return c.Privacy.RedactedText
	}
	return title
}

// matchAny matches the lowercased process name against glob patterns.
func matchAny(patterns []string, process string) bool {
	name := strings.ToLower(process)
	for _, pattern := range patterns {
		matched, err := doublestar.Match(strings.ToLower(pattern), name)
		if err != nil {
			slog.Warn("invalid glob pattern", "pattern", pattern, "error", err)
			continue
		}
		if matched {
			return true
		}
	}
	return false
}
