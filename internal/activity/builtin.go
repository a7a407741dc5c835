package activity

// builtinRules is the compiled-in process table. Only the process name is
// consulted and the state stays the raw window title. Order matters: more
// specific tokens come before tokens they contain.
var builtinRules = []Rule{
	// Editors and IDEs
	{Match: "code", Category: "coding", Icon: "vscode", Details: "Writing Code"},
	{Match: "cursor", Category: "coding", Icon: "vscode", Details: "Writing Code"},
	{Match: "sublime_text", Category: "coding", Icon: "sublime", Details: "Writing Code"},
	{Match: "idea", Category: "coding", Icon: "jetbrains", Details: "Writing Code"},
	{Match: "goland", Category: "coding", Icon: "jetbrains", Details: "Writing Code"},
	{Match: "pycharm", Category: "coding", Icon: "jetbrains", Details: "Writing Code"},
	{Match: "webstorm", Category: "coding", Icon: "jetbrains", Details: "Writing Code"},
	{Match: "nvim", Category: "coding", Icon: "vim", Details: "Writing Code"},
	{Match: "vim", Category: "coding", Icon: "vim", Details: "Writing Code"},
	{Match: "zed", Category: "coding", Icon: "zed", Details: "Writing Code"},

	// Terminals
	{Match: "windowsterminal", Category: "terminal", Icon: "terminal", Details: "In the Terminal"},
	{Match: "alacritty", Category: "terminal", Icon: "terminal", Details: "In the Terminal"},
	{Match: "kitty", Category: "terminal", Icon: "terminal", Details: "In the Terminal"},
	{Match: "wezterm", Category: "terminal", Icon: "terminal", Details: "In the Terminal"},
	{Match: "gnome-terminal", Category: "terminal", Icon: "terminal", Details: "In the Terminal"},
	{Match: "iterm", Category: "terminal", Icon: "terminal", Details: "In the Terminal"},

	// Browsers
	{Match: "chrome", Category: "browsing", Icon: "chrome", Details: "Browsing the Web"},
	{Match: "firefox", Category: "browsing", Icon: "firefox", Details: "Browsing the Web"},
	{Match: "msedge", Category: "browsing", Icon: "edge", Details: "Browsing the Web"},
	{Match: "brave", Category: "browsing", Icon: "brave", Details: "Browsing the Web"},
	{Match: "opera", Category: "browsing", Icon: "opera", Details: "Browsing the Web"},
	{Match: "safari", Category: "browsing", Icon: "safari", Details: "Browsing the Web"},

	// Music and video
	{Match: "spotify", Category: "music", Icon: "spotify", Details: "Listening to Music"},
	{Match: "vlc", Category: "video", Icon: "video", Details: "Watching Video"},
	{Match: "mpv", Category: "video", Icon: "video", Details: "Watching Video"},

	// Chat and meetings
	{Match: "slack", Category: "chat", Icon: "slack", Details: "Chatting"},
	{Match: "discord", Category: "chat", Icon: "discord", Details: "Chatting"},
	{Match: "telegram", Category: "chat", Icon: "telegram", Details: "Chatting"},
	{Match: "teams", Category: "meeting", Icon: "teams", Details: "In a Meeting"},
	{Match: "zoom", Category: "meeting", Icon: "zoom", Details: "In a Meeting"},

	// Games and launchers
	{Match: "steam", Category: "gaming", Icon: "steam", Details: "Playing on Steam"},
	{Match: "epicgameslauncher", Category: "gaming", Icon: "epic", Details: "Playing a Game"},
	{Match: "battle.net", Category: "gaming", Icon: "battlenet", Details: "Playing a Game"},

	// Creative and office
	{Match: "figma", Category: "design", Icon: "figma", Details: "Designing"},
	{Match: "blender", Category: "design", Icon: "blender", Details: "Modeling in Blender"},
	{Match: "photoshop", Category: "design", Icon: "photoshop", Details: "Editing Images"},
	{Match: "winword", Category: "office", Icon: "office", Details: "Writing a Document"},
	{Match: "excel", Category: "office", Icon: "office", Details: "Working in a Spreadsheet"},
	{Match: "powerpnt", Category: "office", Icon: "office", Details: "Editing a Presentation"},
	{Match: "obsidian", Category: "notes", Icon: "obsidian", Details: "Taking Notes"},
	{Match: "notion", Category: "notes", Icon: "notion", Details: "Taking Notes"},

	// Must follow "obsidian".
	{Match: "obs", Category: "streaming", Icon: "obs", Details: "Streaming"},
}

// Builtins returns a copy of the compiled-in process table.
func Builtins() []Rule {
	out := make([]Rule, len(builtinRules))
	copy(out, builtinRules)
	return out
}
