// Package activity classifies a foreground window sample into a presence
// category with an icon, a details line and a state line.
//
// Classification is a pure function of the sample and the rule snapshot
// passed in. Rules are evaluated in four stages, first match wins:
//
//  1. priority rules, refined by a per-application title extractor
//  2. custom rules, taken verbatim
//  3. built-in rules keyed on the process name only
//  4. a generic fallback plus a title keyword sweep
package activity

import "strings"

// ///////////////////////////////////////////////
// Types
// ///////////////////////////////////////////////

// Sample is one reading of the foreground window.
type Sample struct {
	Title   string
	Process string
}

// Unknown is the sentinel sample used when the window query fails or there
// is no foreground window.
var Unknown = Sample{Title: "Unknown", Process: "Unknown"}

// IsUnknown reports whether s is the failure sentinel.
func (s Sample) IsUnknown() bool { return s == Unknown }

// Rule maps a case-insensitive token to presence fields. The token is
// matched as a substring of the process name or the window title.
type Rule struct {
	// Match is the token looked up in the lowercased process name and title.
	Match string `toml:"match" json:"match"`
	// Category is the semantic activity category, e.g. "coding".
	Category string `toml:"category" json:"category"`
	// Icon is the Discord large image asset key.
	Icon string `toml:"icon" json:"icon"`
	// Details is the top line shown on the presence card.
	Details string `toml:"details" json:"details"`
	// Identity optionally routes matches to a named Discord application.
	Identity string `toml:"identity,omitempty" json:"identity,omitempty"`
}

// Source names the stage that produced a [Result].
type Source string

const (
	SourcePriority Source = "priority"
	SourceCustom   Source = "custom"
	SourceBuiltin  Source = "builtin"
	SourceFallback Source = "fallback"
	SourceIdle     Source = "idle"
)

// Result is the classification of one sample. Details and State are not
// length-capped here.
type Result struct {
	Category string
	Icon     string
	Details  string
	State    string
	// Identity is the identity key carried by the matched rule, if any.
	Identity string
	// Source is the stage that matched.
	Source Source
	// Match is the token of the matched rule; empty for fallbacks.
	Match string
}

// RuleSet is the rule snapshot used for one classification.
type RuleSet struct {
	Priority []Rule
	Custom   []Rule
	// Extra rules are evaluated in the built-in stage ahead of the
	// compiled-in table. Rule packs land here.
	Extra []Rule
}

// Idle returns the result published while the user is away.
func Idle() Result {
	return Result{
		Category: "idle",
		Icon:     "idle",
		Details:  "Away",
		State:    "Idle",
		Source:   SourceIdle,
	}
}

// ///////////////////////////////////////////////
// Classification
// ///////////////////////////////////////////////

// Classify returns the presence classification for s. It never fails: an
// unknown or empty sample yields the generic fallback.
func Classify(s Sample, rs RuleSet) Result {
	title := strings.ToLower(s.Title)
	process := strings.ToLower(s.Process)

	if r, ok := firstMatch(rs.Priority, process, title); ok {
		res := fromRule(r, s.Title, SourcePriority)
		if ref, ok := refinerFor(r.Match); ok {
			if o, ok := ref.extract(s.Title); ok {
				o.apply(&res)
			}
		}
		return res
	}

	if r, ok := firstMatch(rs.Custom, process, title); ok {
		return fromRule(r, s.Title, SourceCustom)
	}

	if r, ok := firstProcessMatch(rs.Extra, process); ok {
		return fromRule(r, s.Title, SourceBuiltin)
	}
	if r, ok := firstProcessMatch(builtinRules, process); ok {
		return fromRule(r, s.Title, SourceBuiltin)
	}

	return fallback(s, title)
}

// firstMatch returns the first rule whose token occurs in process or title.
func firstMatch(rules []Rule, process, title string) (Rule, bool) {
	for _, r := range rules {
		tok := strings.ToLower(r.Match)
		if tok == "" {
			continue
		}
		if strings.Contains(process, tok) || strings.Contains(title, tok) {
			return r, true
		}
	}
	return Rule{}, false
}

// firstProcessMatch is [firstMatch] restricted to the process name.
func firstProcessMatch(rules []Rule, process string) (Rule, bool) {
	for _, r := range rules {
		tok := strings.ToLower(r.Match)
		if tok != "" && strings.Contains(process, tok) {
			return r, true
		}
	}
	return Rule{}, false
}

func fromRule(r Rule, title string, src Source) Result {
	icon := r.Icon
	if icon == "" {
		icon = "default"
	}
	return Result{
		Category: r.Category,
		Icon:     icon,
		Details:  r.Details,
		State:    title,
		Identity: r.Identity,
		Source:   src,
		Match:    r.Match,
	}
}

// ///////////////////////////////////////////////
// Fallback
// ///////////////////////////////////////////////

var (
	videoKeywords = []string{"youtube", "netflix", "twitch", "prime video", "disney+", "hulu", "crunchyroll", "vlc media player"}
	gameKeywords  = []string{"minecraft", "fortnite", "valorant", "league of legends", "counter-strike", "roblox", "overwatch", "apex legends", "elden ring"}
)

func fallback(s Sample, lowerTitle string) Result {
	state := s.Title
	if len([]rune(strings.TrimSpace(s.Title))) <= 2 {
		state = "Idle"
	}
	res := Result{
		Category: "app",
		Icon:     "default",
		Details:  "Using " + s.Process,
		State:    state,
		Source:   SourceFallback,
	}

	switch {
	case containsAny(lowerTitle, videoKeywords):
		res.Category = "video"
		res.Icon = "video"
		res.Details = "Watching Video"
	case containsAny(lowerTitle, gameKeywords):
		res.Category = "gaming"
		res.Icon = "gaming"
		res.Details = "Playing a Game"
	}
	return res
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
