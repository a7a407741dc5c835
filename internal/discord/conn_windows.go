// conn_windows.go implements Discord IPC discovery for Windows named pipes
// (\\.\pipe\discord-ipc-N) using go-winio.

//go:build windows

package discord

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/Microsoft/go-winio"
)

// dialTimeout bounds each pipe attempt.
const dialTimeout = 500 * time.Millisecond

// connectToDiscord tries each Discord named pipe slot and returns the first
// successful connection.
func connectToDiscord(ctx context.Context) (net.Conn, error) {
	for i := range maxIPCSlots {
		attempt, cancel := context.WithTimeout(ctx, dialTimeout)
		conn, err := winio.DialPipeContext(attempt, fmt.Sprintf(`\\.\pipe\discord-ipc-%d`, i))
		cancel()
		if err == nil {
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, ErrIPCNotAvailable
}
