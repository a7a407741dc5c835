// Tests for the activity package covering stage ordering, the per-app title
// refiners, the built-in table and the generic fallback.
package activity

import (
	"reflect"
	"testing"
)

var defaultPriority = []Rule{
	{Match: "spotify", Category: "music", Icon: "spotify", Details: "Spotify"},
	{Match: "slack", Category: "chat", Icon: "slack", Details: "Slack"},
	{Match: "steam", Category: "gaming", Icon: "steam", Details: "Steam"},
	{Match: "chrome", Category: "browsing", Icon: "chrome", Details: "Browsing"},
	{Match: "code", Category: "coding", Icon: "vscode", Details: "Editing"},
}

// ///////////////////////////////////////////////
// Stage Ordering
// ///////////////////////////////////////////////

func TestClassify_Stages(t *testing.T) {
	rs := RuleSet{
		Priority: []Rule{{Match: "focus", Category: "work", Icon: "focus", Details: "Deep Work", Identity: "work"}},
		Custom:   []Rule{{Match: "notes", Category: "writing", Icon: "pen", Details: "Writing"}},
		Extra:    []Rule{{Match: "krita", Category: "art", Icon: "krita", Details: "Painting"}},
	}

	tests := []struct {
		name     string
		sample   Sample
		wantCat  string
		wantSrc  Source
		wantID   string
		wantDet  string
		wantIcon string
	}{
		{"priority on process", Sample{Title: "x", Process: "FocusApp"}, "work", SourcePriority, "work", "Deep Work", "focus"},
		{"priority on title", Sample{Title: "Focus session", Process: "other"}, "work", SourcePriority, "work", "Deep Work", "focus"},
		{"custom on title", Sample{Title: "my NOTES.txt", Process: "gedit"}, "writing", SourceCustom, "", "Writing", "pen"},
		{"extra before compiled table", Sample{Title: "canvas", Process: "krita"}, "art", SourceBuiltin, "", "Painting", "krita"},
		{"compiled table", Sample{Title: "main.go", Process: "goland64"}, "coding", SourceBuiltin, "", "Writing Code", "jetbrains"},
		{"fallback", Sample{Title: "Calculator", Process: "calc"}, "app", SourceFallback, "", "Using calc", "default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.sample, rs)
			if got.Category != tt.wantCat || got.Source != tt.wantSrc || got.Identity != tt.wantID ||
				got.Details != tt.wantDet || got.Icon != tt.wantIcon {
				t.Errorf("Classify(%+v) = %+v", tt.sample, got)
			}
			if got.State != tt.sample.Title {
				t.Errorf("State = %q, want raw title %q", got.State, tt.sample.Title)
			}
		})
	}
}

func TestClassify_BuiltinIgnoresTitle(t *testing.T) {
	got := Classify(Sample{Title: "spotify playlist export", Process: "notepad"}, RuleSet{})
	if got.Source != SourceFallback {
		t.Errorf("built-in table must match the process only, got %+v", got)
	}
}

func TestClassify_FirstMatchWins(t *testing.T) {
	rs := RuleSet{Priority: []Rule{
		{Match: "term", Category: "first"},
		{Match: "terminal", Category: "second"},
	}}
	if got := Classify(Sample{Title: "", Process: "terminal"}, rs); got.Category != "first" {
		t.Errorf("Category = %q, want first", got.Category)
	}
}

func TestClassify_ReorderNonOverlapping(t *testing.T) {
	a := Rule{Match: "alpha", Category: "a", Icon: "ia"}
	b := Rule{Match: "beta", Category: "b", Icon: "ib"}
	samples := []Sample{{Title: "x", Process: "alpha"}, {Title: "beta window", Process: "y"}}

	for _, s := range samples {
		r1 := Classify(s, RuleSet{Priority: []Rule{a, b}})
		r2 := Classify(s, RuleSet{Priority: []Rule{b, a}})
		if !reflect.DeepEqual(r1, r2) {
			t.Errorf("order changed result for %+v: %+v vs %+v", s, r1, r2)
		}
	}
}

func TestClassify_Idempotent(t *testing.T) {
	rs := RuleSet{Priority: defaultPriority}
	s := Sample{Title: "Song - Artist - Spotify", Process: "Spotify"}
	if r1, r2 := Classify(s, rs), Classify(s, rs); !reflect.DeepEqual(r1, r2) {
		t.Errorf("results differ: %+v vs %+v", r1, r2)
	}
}

func TestClassify_EmptyTokenNeverMatches(t *testing.T) {
	rs := RuleSet{Priority: []Rule{{Match: "", Category: "everything"}}}
	if got := Classify(Sample{Title: "t", Process: "p"}, rs); got.Category == "everything" {
		t.Error("empty match token should be skipped")
	}
}

// ///////////////////////////////////////////////
// Refiners
// ///////////////////////////////////////////////

func TestClassify_Refiners(t *testing.T) {
	rs := RuleSet{Priority: defaultPriority}

	tests := []struct {
		name        string
		sample      Sample
		wantState   string
		wantDetails string
		wantIcon    string
	}{
		// Music
		{"track", Sample{"Song - Artist - Spotify", "Spotify"}, "Song by Artist", "Listening to Music", "spotify"},
		{"bare player", Sample{"Spotify", "Spotify"}, "Browsing Music", "Spotify", "spotify"},
		{"premium marker", Sample{"Spotify Premium", "Spotify"}, "Browsing Music", "Spotify", "spotify"},
		{"no capture keeps title", Sample{"Advertisement", "Spotify"}, "Advertisement", "Spotify", "spotify"},

		// Chat
		{"channel", Sample{"general (Channel) - Acme - Slack", "slack"}, "In #general on Acme", "Slack", "slack"},
		{"two segments", Sample{"Threads - Slack", "slack"}, "Chatting in Threads", "Slack", "slack"},
		{"direct message", Sample{"Alice (DM) - Acme - Slack", "slack"}, "In Direct Messages", "Slack", "slack"},
		{"no separator", Sample{"Slack", "slack"}, "Slack", "Slack", "slack"},

		// Game storefront
		{"bare client", Sample{"Steam", "steam"}, "Browsing Steam", "Steam", "steam"},
		{"store", Sample{"Steam Store", "steam"}, "Browsing the Store", "Steam", "steam"},
		{"library", Sample{"Library - Steam", "steam"}, "Browsing the Library", "Steam", "steam"},
		{"community", Sample{"Steam Community", "steam"}, "Browsing the Community", "Steam", "steam"},
		{"game", Sample{"Hades - Steam", "steam"}, "Playing Hades", "Steam", "steam"},

		// Browser
		{"page site browser", Sample{"Page - Site - Google Chrome", "chrome"}, "On Site", "Browsing", "chrome"},
		{"page browser", Sample{"Page - Google Chrome", "chrome"}, "On Page", "Browsing", "chrome"},
		{"youtube", Sample{"Cats - YouTube - Google Chrome", "chrome"}, "On YouTube", "Watching YouTube", "youtube"},
		{"github", Sample{"statuscord: presence - GitHub - Google Chrome", "chrome"}, "On GitHub", "Browsing GitHub", "github"},
		{"single segment", Sample{"New Tab", "chrome"}, "New Tab", "Browsing", "chrome"},

		// Editor
		{"typescript", Sample{"index.ts - web - Visual Studio Code", "Code"}, "Coding in TypeScript", "Editing", "vscode"},
		{"unsaved marker", Sample{"● main.go - statuscord - Visual Studio Code", "Code"}, "Coding in Go", "Editing", "vscode"},
		{"unmapped extension", Sample{"notes.xyz - Visual Studio Code", "Code"}, "Coding in xyz", "Editing", "vscode"},
		{"title ending in extension", Sample{"Visual Studio Code - app.ts", "Code"}, "Coding in TypeScript", "Editing", "vscode"},
		{"no file", Sample{"Welcome - Visual Studio Code", "Code"}, "Welcome - Visual Studio Code", "Editing", "vscode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.sample, rs)
			if got.State != tt.wantState {
				t.Errorf("State = %q, want %q", got.State, tt.wantState)
			}
			if got.Details != tt.wantDetails {
				t.Errorf("Details = %q, want %q", got.Details, tt.wantDetails)
			}
			if got.Icon != tt.wantIcon {
				t.Errorf("Icon = %q, want %q", got.Icon, tt.wantIcon)
			}
		})
	}
}

func TestClassify_CustomRulesAreNotRefined(t *testing.T) {
	rs := RuleSet{Custom: []Rule{{Match: "spotify", Category: "music", Icon: "s", Details: "Tunes"}}}
	got := Classify(Sample{"Song - Artist - Spotify", "Spotify"}, rs)
	if got.State != "Song - Artist - Spotify" || got.Details != "Tunes" {
		t.Errorf("custom rule should be verbatim, got %+v", got)
	}
}

func TestRefinerTable(t *testing.T) {
	tests := []struct {
		token string
		want  string
	}{
		{"spotify", "music"},
		{"Slack", "chat"},
		{"steam", "games"},
		{"msedge", "browser"},
		{"firefox", "browser"},
		{"vscode", "editor"},
		{"sublime_text", "editor"},
	}
	for _, tt := range tests {
		r, ok := refinerFor(tt.token)
		if !ok || r.name != tt.want {
			t.Errorf("refinerFor(%q) = %q, %v; want %q", tt.token, r.name, ok, tt.want)
		}
	}
	if _, ok := refinerFor("notepad"); ok {
		t.Error("unexpected refiner for notepad")
	}
}

// ///////////////////////////////////////////////
// Fallback
// ///////////////////////////////////////////////

func TestClassify_Fallback(t *testing.T) {
	tests := []struct {
		name   string
		sample Sample
		want   Result
	}{
		{
			name:   "unknown sentinel",
			sample: Unknown,
			want:   Result{Category: "app", Icon: "default", Details: "Using Unknown", State: "Unknown", Source: SourceFallback},
		},
		{
			name:   "short title is idle",
			sample: Sample{Title: "ab", Process: "thing"},
			want:   Result{Category: "app", Icon: "default", Details: "Using thing", State: "Idle", Source: SourceFallback},
		},
		{
			name:   "empty title is idle",
			sample: Sample{Title: "", Process: ""},
			want:   Result{Category: "app", Icon: "default", Details: "Using ", State: "Idle", Source: SourceFallback},
		},
		{
			name:   "video keyword",
			sample: Sample{Title: "Netflix", Process: "ApplicationFrameHost"},
			want:   Result{Category: "video", Icon: "video", Details: "Watching Video", State: "Netflix", Source: SourceFallback},
		},
		{
			name:   "game keyword",
			sample: Sample{Title: "Minecraft 1.21", Process: "javaw"},
			want:   Result{Category: "gaming", Icon: "gaming", Details: "Playing a Game", State: "Minecraft 1.21", Source: SourceFallback},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.sample, RuleSet{}); got != tt.want {
				t.Errorf("Classify = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestIdle(t *testing.T) {
	r := Idle()
	if r.Category != "idle" || r.Details != "Away" || r.State != "Idle" || r.Icon != "idle" {
		t.Errorf("Idle() = %+v", r)
	}
}

func TestBuiltinsIsCopy(t *testing.T) {
	b := Builtins()
	b[0].Category = "mutated"
	if builtinRules[0].Category == "mutated" {
		t.Error("Builtins should return a copy")
	}
}
