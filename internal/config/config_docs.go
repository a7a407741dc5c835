package config

import (
	"bytes"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// ///////////////////////////////////////////////
// Documentation Types
// ///////////////////////////////////////////////

// FieldDoc holds documentation and alternative examples for a single config field.
type FieldDoc struct {
	// Comment is shown as a header comment above the field.
	Comment string

	// Alternatives are shown as commented-out lines below the active value.
	Alternatives []string
}

// ///////////////////////////////////////////////
// Field Documentation Map
// ///////////////////////////////////////////////

// Docs maps TOML field paths (dot-separated, e.g. "behavior.window_source")
// to their [FieldDoc] entries. [RenderDefault] uses it to annotate the
// default config file.
var Docs = map[string]FieldDoc{
	"version": {
		Comment: "Config schema version. Do not edit.",
	},

	// ── Identities ───────────────────────────────────────────────
	"identities.default": {
		Comment: "Identity used when no rule or category selects another one.",
	},
	"identities.apps": {
		Comment: "Discord application ID per identity. Each identity shows up in Discord\nunder its application's name, so add one per name you want to appear as.",
		Alternatives: []string{
			`games = "<application id>"`,
		},
	},
	"identities.categories": {
		Comment: "Route activity categories to identities.",
		Alternatives: []string{
			`[identities.categories]`,
			`gaming = "games"`,
		},
	},

	// ── Display ──────────────────────────────────────────────────
	"display.small_image": {
		Comment: "Small overlay image asset key. Leave empty for none.",
		Alternatives: []string{
			`small_image = "statuscord"`,
		},
	},
	"display.buttons": {
		Comment: "Up to two buttons on the presence card. Both label and url are required.",
		Alternatives: []string{
			`[[display.buttons]]`,
			`label = "My Website"`,
			`url = "https://example.com"`,
		},
	},

	// ── Behavior ─────────────────────────────────────────────────
	"behavior.poll_interval_seconds": {
		Comment: "Seconds between presence updates.",
	},
	"behavior.idle_timeout_minutes": {
		Comment: "Show \"Away\" after this many minutes without keyboard or mouse input.\n0 disables idle detection. Supported on GNOME and Windows.",
		Alternatives: []string{
			`idle_timeout_minutes = 10`,
		},
	},
	"behavior.enable_detailed_stats": {
		Comment: "Show total time per category in the small image tooltip.",
	},
	"behavior.enable_system_info": {
		Comment: "Append CPU and RAM usage to the state line.",
	},
	"behavior.fallback_after_failures": {
		Comment: "Consecutive failed window queries before showing a generic \"Online\" card.",
	},
	"behavior.window_source": {
		Comment: "Foreground window backend. Options: \"auto\", \"hyprland\", \"gnome\", \"x11\", \"macos\", \"windows\"",
		Alternatives: []string{
			`window_source = "x11"`,
		},
	},

	// ── Switching ────────────────────────────────────────────────
	"switching.debounce_seconds": {
		Comment: "Wait this long before switching identity. A newer request replaces a pending one.",
	},
	"switching.cooldown_seconds": {
		Comment: "Minimum seconds between identity switches. Switches sooner than this are dropped.",
	},

	// ── Reconnect ────────────────────────────────────────────────
	"reconnect.base_seconds": {
		Comment: "Delay before the first reconnect attempt.\nEach further attempt waits factor times longer, up to max_seconds.",
	},
	"reconnect.factor":      {},
	"reconnect.max_seconds": {},

	// ── Privacy ──────────────────────────────────────────────────
	"privacy.ignore": {
		Comment: "Process names for which nothing is published. Glob patterns, case-insensitive.",
		Alternatives: []string{
			`ignore = ["keepass*", "1password"]`,
		},
	},
	"privacy.redact_titles": {
		Comment: "Process names whose window titles are hidden before classification.",
		Alternatives: []string{
			`redact_titles = ["thunderbird", "signal*"]`,
		},
	},
	"privacy.redacted_text": {
		Comment: "Text used in place of a hidden window title.",
	},

	// ── Rule Pack ────────────────────────────────────────────────
	"rule_pack.source": {
		Comment: "Extra application rules. Options: \"builtin\", \"url\", \"file\"\n  builtin: compiled-in table only\n  url:     fetch a JSON pack from url, cached for offline starts\n  file:    read a JSON pack from file",
		Alternatives: []string{
			`source = "url"`,
			`source = "file"`,
		},
	},
	"rule_pack.url": {
		Alternatives: []string{
			`url = "https://example.com/rules.json"`,
		},
	},
	"rule_pack.file": {
		Alternatives: []string{
			`file = "/home/me/.statuscord/rules.json"`,
		},
	},
	"rule_pack.timeout_seconds": {
		Comment: "Timeout for each rule pack fetch attempt.",
	},

	// ── Log ──────────────────────────────────────────────────────
	"log.level": {
		Comment: "Minimum log level. Options: \"trace\", \"debug\", \"info\", \"warn\", \"error\"",
		Alternatives: []string{
			`level = "debug"`,
		},
	},
	"log.max_size_mb": {
		Comment: "Rotate the log file at this size.",
	},
	"log.console": {
		Comment: "Mirror log lines to the console.",
	},

	// ── Update ───────────────────────────────────────────────────
	"update.check": {
		Comment: "Check for a newer release at startup.",
	},

	// ── Rules ────────────────────────────────────────────────────
	"priority_rules": {
		Comment: "Priority rules are checked first, against process name and window title.\nKnown applications get their title parsed into the state line\n(track and artist, channel, game, site, file language).\nSet identity to route a match to a named identity.",
	},
	"custom_rules": {
		Comment: "Custom rules are checked after priority rules and shown as written,\nwith the window title as the state line.",
		Alternatives: []string{
			`[[custom_rules]]`,
			`match = "blender"`,
			`category = "creative"`,
			`icon = "blender"`,
			`details = "3D Modeling"`,
		},
	},
}

// ///////////////////////////////////////////////
// Rendering
// ///////////////////////////////////////////////

// RenderDefault encodes [DefaultConfig] and annotates it with [Docs].
func RenderDefault() ([]byte, error) {
	return Render(DefaultConfig())
}

// Render encodes cfg as TOML with a comment block above each documented
// field. Documented fields the encoder omitted are listed as comments at the
// end of their section.
func Render(cfg *Config) ([]byte, error) {
	var raw bytes.Buffer
	if err := toml.NewEncoder(&raw).Encode(cfg); err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}

	out := []string{
		"# ///////////////////////////////////////////////",
		"# Statuscord Configuration",
		"# ///////////////////////////////////////////////",
		"",
	}
	var section []string
	emitted := map[string]bool{}
	seenArrays := map[string]bool{}

	for _, line := range strings.Split(raw.String(), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if strings.HasPrefix(trimmed, "[[") {
			name := strings.Trim(trimmed, "[] ")
			next := strings.Split(name, ".")
			if !seenArrays[name] {
				leaveSection(&out, section, next, emitted)
				seenArrays[name] = true
				emitted[name] = true
				out = append(out, "", fmt.Sprintf("# ///// %s /////", sectionName(name)), "")
				out = appendComment(out, Docs[name].Comment)
			} else {
				out = append(out, "")
			}
			section = next
			out = append(out, trimmed)
			continue
		}

		if strings.HasPrefix(trimmed, "[") {
			name := strings.Trim(trimmed, "[] ")
			next := strings.Split(name, ".")
			leaveSection(&out, section, next, emitted)
			section = next
			emitted[name] = true
			out = append(out, "", fmt.Sprintf("# ///// %s /////", sectionName(name)), "")
			out = appendComment(out, Docs[name].Comment)
			out = append(out, trimmed)
			for _, alt := range Docs[name].Alternatives {
				out = append(out, "# "+alt)
			}
			continue
		}

		if !strings.Contains(trimmed, "=") {
			out = append(out, trimmed)
			continue
		}

		key := strings.TrimSpace(strings.SplitN(trimmed, "=", 2)[0])
		full := key
		if len(section) > 0 {
			full = strings.Join(section, ".") + "." + key
		}
		emitted[full] = true

		doc, ok := Docs[full]
		if !ok {
			out = append(out, trimmed)
			continue
		}
		out = appendComment(out, doc.Comment)
		out = append(out, trimmed)
		for _, alt := range doc.Alternatives {
			out = append(out, "# "+alt)
		}
	}
	leaveSection(&out, section, nil, emitted)

	// Top-level documented keys with no section of their own.
	var rest []string
	for path := range Docs {
		if !strings.Contains(path, ".") && !emitted[path] {
			rest = append(rest, path)
		}
	}
	sort.Strings(rest)
	for _, path := range rest {
		out = append(out, "", fmt.Sprintf("# ///// %s /////", sectionName(path)), "")
		out = appendComment(out, Docs[path].Comment)
		for _, alt := range Docs[path].Alternatives {
			out = append(out, "# "+alt)
		}
	}

	return []byte(strings.TrimRight(strings.Join(out, "\n"), "\n") + "\n"), nil
}

// leaveSection injects omitted keys for every level of cur that next does
// not continue, innermost first.
func leaveSection(out *[]string, cur, next []string, emitted map[string]bool) {
	for depth := len(cur); depth > 0; depth-- {
		if len(next) >= depth && slices.Equal(cur[:depth], next[:depth]) {
			return
		}
		injectOmitted(out, cur[:depth], emitted)
	}
}

// injectOmitted appends commented-out entries for documented keys of the
// current section that the encoder left out, typically omitempty fields.
func injectOmitted(out *[]string, section []string, emitted map[string]bool) {
	if len(section) == 0 {
		return
	}
	prefix := strings.Join(section, ".") + "."

	var omitted []string
	for path := range Docs {
		rest, ok := strings.CutPrefix(path, prefix)
		if !ok || strings.Contains(rest, ".") || emitted[path] {
			continue
		}
		omitted = append(omitted, path)
	}
	sort.Strings(omitted)

	for _, path := range omitted {
		doc := Docs[path]
		*out = append(*out, "")
		*out = appendComment(*out, doc.Comment)
		for _, alt := range doc.Alternatives {
			*out = append(*out, "# "+alt)
		}
		emitted[path] = true
	}
}

func appendComment(out []string, comment string) []string {
	if comment == "" {
		return out
	}
	for _, cl := range strings.Split(comment, "\n") {
		out = append(out, "# "+cl)
	}
	return out
}

// sectionName turns "rule_pack" or "identities.apps" into "Rule Pack" or "Apps".
func sectionName(section string) string {
	parts := strings.Split(section, ".")
	words := strings.Split(parts[len(parts)-1], "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
