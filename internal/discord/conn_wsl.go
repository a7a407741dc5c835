// conn_wsl.go detects WSL, where Discord runs on the Windows host and its
// named pipe has to be relayed to a Unix socket:
//
//	socat UNIX-LISTEN:/tmp/discord-ipc-0,fork EXEC:"npiperelay.exe -ep -s //./pipe/discord-ipc-0"
//
// The relay socket lands in /tmp, which the regular probe already covers.

//go:build linux

package discord

import (
	"os"
	"strings"
)

// isWSL reports whether the current process is running inside WSL.
func isWSL() bool {
	data, err := os.ReadFile("/proc/version")
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(string(data)), "microsoft")
}
