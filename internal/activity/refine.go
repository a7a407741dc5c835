package activity

import (
	"regexp"
	"strings"
)

// ///////////////////////////////////////////////
// Refiners
// ///////////////////////////////////////////////

// override carries fields re-derived from a window title. Empty fields leave
// the rule's value in place.
type override struct {
	State   string
	Details string
	Icon    string
}

func (o override) apply(r *Result) {
	if o.State != "" {
		r.State = o.State
	}
	if o.Details != "" {
		r.Details = o.Details
	}
	if o.Icon != "" {
		r.Icon = o.Icon
	}
}

// refiner pairs a matcher over a priority rule's token with a title
// extractor. An extractor returning false keeps the pre-refinement state.
type refiner struct {
	name    string
	tokens  []string
	extract func(title string) (override, bool)
}

func (r refiner) matches(token string) bool {
	token = strings.ToLower(token)
	for _, t := range r.tokens {
		if strings.Contains(token, t) {
			return true
		}
	}
	return false
}

// refiners is evaluated in order; the first whose matcher accepts the rule
// token wins.
var refiners = []refiner{
	{name: "music", tokens: []string{"spotify"}, extract: refineMusic},
	{name: "chat", tokens: []string{"slack"}, extract: refineChat},
	{name: "games", tokens: []string{"steam"}, extract: refineGames},
	{name: "browser", tokens: []string{"chrome", "firefox", "msedge", "edge", "brave", "opera", "vivaldi"}, extract: refineBrowser},
	{name: "editor", tokens: []string{"code", "cursor", "sublime", "idea", "goland", "pycharm", "webstorm", "zed"}, extract: refineEditor},
}

func refinerFor(token string) (refiner, bool) {
	for _, r := range refiners {
		if r.matches(token) {
			return r, true
		}
	}
	return refiner{}, false
}

// splitTitle splits on the dash separators used by desktop apps, trimming
// each segment and dropping empty ones.
func splitTitle(title string) []string {
	title = strings.ReplaceAll(title, " — ", " - ")
	var segs []string
	for _, s := range strings.Split(title, " - ") {
		if s = strings.TrimSpace(s); s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

// ///////////////////////////////////////////////
// Music
// ///////////////////////////////////////////////

var trackRe = regexp.MustCompile(`(?i)^(.+?) - (.+) - spotify$`)

func refineMusic(title string) (override, bool) {
	lower := strings.ToLower(strings.TrimSpace(title))
	if lower == "spotify" || strings.HasPrefix(lower, "spotify ") ||
		strings.Contains(lower, "premium") || strings.Contains(lower, "spotify free") {
		return override{State: "Browsing Music"}, true
	}
	m := trackRe.FindStringSubmatch(strings.TrimSpace(title))
	if m == nil {
		return override{}, false
	}
	return override{
		State:   strings.TrimSpace(m[1]) + " by " + strings.TrimSpace(m[2]),
		Details: "Listening to Music",
	}, true
}

// ///////////////////////////////////////////////
// Chat
// ///////////////////////////////////////////////

func refineChat(title string) (override, bool) {
	lower := strings.ToLower(title)
	if strings.Contains(lower, "direct message") || strings.Contains(lower, "(dm)") {
		return override{State: "In Direct Messages"}, true
	}
	if !strings.Contains(title, " - ") {
		return override{}, false
	}
	segs := splitTitle(title)
	for i, s := range segs {
		segs[i] = strings.TrimSuffix(s, " (Channel)")
	}
	switch {
	case len(segs) >= 3:
		return override{State: "In #" + segs[0] + " on " + segs[1]}, true
	case len(segs) == 2:
		return override{State: "Chatting in " + segs[0]}, true
	}
	return override{}, false
}

// ///////////////////////////////////////////////
// Game storefront
// ///////////////////////////////////////////////

var gameRe = regexp.MustCompile(`(?i)^(.+) - steam$`)

// storeStates maps storefront keywords to fixed states, checked in order.
var storeStates = []struct {
	keyword string
	state   string
}{
	{"store", "Browsing the Store"},
	{"library", "Browsing the Library"},
	{"community", "Browsing the Community"},
}

func refineGames(title string) (override, bool) {
	lower := strings.ToLower(strings.TrimSpace(title))
	if lower == "steam" {
		return override{State: "Browsing Steam"}, true
	}
	for _, s := range storeStates {
		if strings.Contains(lower, s.keyword) {
			return override{State: s.state}, true
		}
	}
	m := gameRe.FindStringSubmatch(strings.TrimSpace(title))
	if m == nil {
		return override{}, false
	}
	return override{State: "Playing " + strings.TrimSpace(m[1])}, true
}

// ///////////////////////////////////////////////
// Browser
// ///////////////////////////////////////////////

// siteOverrides re-label well-known sites regardless of the page segment.
var siteOverrides = []struct {
	keyword string
	details string
	icon    string
}{
	{"youtube", "Watching YouTube", "youtube"},
	{"twitch", "Watching Twitch", "twitch"},
	{"github", "Browsing GitHub", "github"},
}

func refineBrowser(title string) (override, bool) {
	var o override
	ok := false

	segs := splitTitle(title)
	switch {
	case len(segs) >= 3:
		o.State = "On " + segs[len(segs)-2]
		ok = true
	case len(segs) == 2:
		o.State = "On " + segs[0]
		ok = true
	}

	lower := strings.ToLower(title)
	for _, s := range siteOverrides {
		if strings.Contains(lower, s.keyword) {
			o.Details = s.details
			o.Icon = s.icon
			ok = true
			break
		}
	}
	return o, ok
}

// ///////////////////////////////////////////////
// Editor
// ///////////////////////////////////////////////

// languages maps lowercase file extensions to display names. Extensions
// missing here are shown as written in the title.
var languages = map[string]string{
	"ts":    "TypeScript",
	"tsx":   "TypeScript",
	"js":    "JavaScript",
	"jsx":   "JavaScript",
	"mjs":   "JavaScript",
	"go":    "Go",
	"py":    "Python",
	"rs":    "Rust",
	"java":  "Java",
	"kt":    "Kotlin",
	"c":     "C",
	"h":     "C",
	"cpp":   "C++",
	"hpp":   "C++",
	"cc":    "C++",
	"cs":    "C#",
	"rb":    "Ruby",
	"php":   "PHP",
	"swift": "Swift",
	"dart":  "Dart",
	"lua":   "Lua",
	"zig":   "Zig",
	"sh":    "Shell",
	"sql":   "SQL",
	"html":  "HTML",
	"css":   "CSS",
	"scss":  "SCSS",
	"vue":   "Vue",
	"md":    "Markdown",
	"json":  "JSON",
	"yaml":  "YAML",
	"yml":   "YAML",
	"toml":  "TOML",
}

var extRe = regexp.MustCompile(`\S\.([A-Za-z0-9_+#]+)$`)

// fileExtension returns the extension of the first title segment that looks
// like a file name.
func fileExtension(title string) (string, bool) {
	for _, seg := range splitTitle(title) {
		seg = strings.TrimSpace(strings.TrimLeft(seg, "●* "))
		if m := extRe.FindStringSubmatch(seg); m != nil {
			return m[1], true
		}
	}
	return "", false
}

func refineEditor(title string) (override, bool) {
	ext, ok := fileExtension(title)
	if !ok {
		return override{}, false
	}
	lang, ok := languages[strings.ToLower(ext)]
	if !ok {
		lang = ext
	}
	return override{State: "Coding in " + lang}, true
}
