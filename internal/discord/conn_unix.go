// conn_unix.go implements Discord IPC socket discovery for Unix-like systems
// (Linux, macOS, FreeBSD).

//go:build !windows

package discord

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// dialTimeout bounds each socket attempt.
const dialTimeout = 500 * time.Millisecond

// ///////////////////////////////////////////////
// Connection
// ///////////////////////////////////////////////

// connectToDiscord tries each known IPC socket path and returns the first
// successful connection.
func connectToDiscord(ctx context.Context) (net.Conn, error) {
	d := net.Dialer{Timeout: dialTimeout}
	for _, path := range socketPaths(os.Getenv, os.Getuid()) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		conn, err := d.DialContext(ctx, "unix", path)
		if err == nil {
			return conn, nil
		}
	}

	if isWSL() {
		return nil, fmt.Errorf("%w: running under WSL, relay the Windows pipe with socat + npiperelay.exe", ErrIPCNotAvailable)
	}
	return nil, ErrIPCNotAvailable
}

// socketPaths lists candidate sockets in probe order: runtime and temp
// directories first, then Snap and Flatpak sandboxes.
func socketPaths(getenv func(string) string, uid int) []string {
	// Socket name prefixes for Discord variants (stable, Canary, PTB).
	variants := []string{"discord-ipc", "discordcanary-ipc", "discordptb-ipc"}

	var dirs []string
	seen := map[string]bool{}
	for _, key := range []string{"XDG_RUNTIME_DIR", "TMPDIR", "TMP", "TEMP"} {
		if dir := getenv(key); dir != "" && !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}
	if !seen["/tmp"] {
		dirs = append(dirs, "/tmp")
	}

	var paths []string
	for _, dir := range dirs {
		for _, v := range variants {
			for i := range maxIPCSlots {
				paths = append(paths, filepath.Join(dir, fmt.Sprintf("%s-%d", v, i)))
			}
		}
	}

	run := "/run/user/" + strconv.Itoa(uid)
	sandboxes := []string{
		"snap.discord",
		"snap.discord-canary",
		"snap.discord-ptb",
		"app/com.discordapp.Discord",
		"app/com.discordapp.DiscordCanary",
		"app/com.discordapp.DiscordPTB",
	}
	for _, sb := range sandboxes {
		for i := range maxIPCSlots {
			paths = append(paths, fmt.Sprintf("%s/%s/discord-ipc-%d", run, sb, i))
		}
	}
	return paths
}
