// Package discord provides a client for Discord's local IPC socket,
// enabling Rich Presence updates via the SET_ACTIVITY command.
//
// A [Client] owns one connection. After the handshake a read loop answers
// keepalive pings and closes [Client.Done] when Discord goes away, so the
// caller can treat the client as a disposable transport. Platform-specific
// socket discovery lives in conn_unix.go and conn_windows.go.
package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"sync"
	"time"
)

// HandshakeTimeout bounds the handshake exchange.
const HandshakeTimeout = 5 * time.Second

// ///////////////////////////////////////////////
// Sentinel Errors
// ///////////////////////////////////////////////

// ErrNotConnected is returned when an operation requires an active connection.
var ErrNotConnected = errors.New("not connected")

// ErrConnectAborted is returned by [Client.Connect] when Close or another
// Connect ran while the handshake was in flight.
var ErrConnectAborted = errors.New("connect aborted by close")

// ErrClosedByDiscord is reported by [Client.Err] when Discord sent a CLOSE frame.
var ErrClosedByDiscord = errors.New("connection closed by discord")

// ///////////////////////////////////////////////
// Data Types
// ///////////////////////////////////////////////

// Button represents a clickable button in a Discord Rich Presence activity.
type Button struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// Timestamps holds the start timestamp for an activity, in Unix seconds.
type Timestamps struct {
	Start int64 `json:"start,omitempty"`
}

// Assets holds image keys and tooltip text for an activity.
type Assets struct {
	LargeImage string `json:"large_image,omitempty"`
	LargeText  string `json:"large_text,omitempty"`
	SmallImage string `json:"small_image,omitempty"`
	SmallText  string `json:"small_text,omitempty"`
}

// Activity represents a Discord Rich Presence activity.
type Activity struct {
	Details    string      `json:"details,omitempty"`
	State      string      `json:"state,omitempty"`
	Timestamps *Timestamps `json:"timestamps,omitempty"`
	Assets     *Assets     `json:"assets,omitempty"`
	Buttons    []Button    `json:"buttons,omitempty"`
}

// message is the envelope of every JSON frame exchanged after the handshake.
type message struct {
	Cmd   string          `json:"cmd"`
	Evt   string          `json:"evt,omitempty"`
	Nonce string          `json:"nonce,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type errorData struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ///////////////////////////////////////////////
// Client
// ///////////////////////////////////////////////

// DialFunc opens the raw IPC connection.
type DialFunc func(ctx context.Context) (net.Conn, error)

// Client manages a connection to Discord's IPC socket.
type Client struct {
	// appID is the Discord application (OAuth2 client) identifier.
	appID string
	dial  DialFunc
	log   *slog.Logger

	// mu protects every field below.
	mu sync.Mutex
	// conn is the active IPC socket connection, or nil when disconnected.
	conn net.Conn
	// gen advances on every Connect and Close; a connect that finishes under
	// a different gen was superseded.
	gen uint64
	// nonce is a monotonically increasing counter used to tag each command frame.
	nonce uint64
	// done is closed by the read loop when conn ends.
	done chan struct{}
	// err is why conn ended; nil after a local Close.
	err error
}

// Option configures a [Client].
type Option func(*Client)

// WithDialer replaces socket discovery, typically with a net.Pipe in tests.
func WithDialer(d DialFunc) Option {
	return func(c *Client) { c.dial = d }
}

// WithLogger sets the logger used by the read loop.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// NewClient creates a new Discord IPC client for the given application ID.
func NewClient(appID string, opts ...Option) *Client {
	c := &Client{appID: appID, dial: connectToDiscord, log: slog.Default()}
	for _, o := range opts {
		o(c)
	}
	c.done = make(chan struct{})
	close(c.done)
	return c
}

// AppID returns the application ID the client identifies as.
func (c *Client) AppID() string { return c.appID }

// Connect dials Discord, performs the handshake and starts the read loop.
// An existing connection is closed first. The dial and handshake run without
// the client lock, so a concurrent Close returns at once; the new connection
// is then discarded and Connect reports ErrConnectAborted.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	if err := handshake(conn, c.appID); err != nil {
		conn.Close()
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		conn.Close()
		return ErrConnectAborted
	}
	c.conn = conn
	c.err = nil
	c.done = make(chan struct{})
	go c.readLoop(conn, c.done)
	return nil
}

// SetActivity sends a SET_ACTIVITY command to Discord.
func (c *Client) SetActivity(activity *Activity) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setActivity(activity)
}

// ClearActivity sends a SET_ACTIVITY command with a nil activity.
func (c *Client) ClearActivity() error {
	return c.SetActivity(nil)
}

// Close clears the activity and closes the connection. A Connect still in
// progress is aborted.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	if c.conn == nil {
		return nil
	}

	// Best-effort clear before closing.
	_ = c.setActivity(nil)

	err := c.conn.Close()
	c.conn = nil
	return err
}

// Connected reports whether the client has an active connection.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Done returns a channel closed when the current connection ends, whether
// Discord dropped it or [Client.Close] was called. Before the first
// successful Connect it is already closed.
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Err reports why the last connection ended. It is nil while connected and
// after a local Close.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// setActivity encodes and writes SET_ACTIVITY. The caller must hold c.mu.
func (c *Client) setActivity(activity *Activity) error {
	return c.sendCommand("SET_ACTIVITY", map[string]any{
		"pid":      os.Getpid(),
		"activity": activity,
	})
}

// sendCommand writes a command frame to the IPC connection.
// The caller must hold c.mu.
func (c *Client) sendCommand(cmd string, args map[string]any) error {
	if c.conn == nil {
		return ErrNotConnected
	}

	c.nonce++
	nonce := strconv.FormatUint(c.nonce, 10)

	payload, err := json.Marshal(map[string]any{
		"cmd":   cmd,
		"args":  args,
		"nonce": nonce,
	})
	if err != nil {
		return fmt.Errorf("marshaling command: %w", err)
	}

	return WriteFrame(c.conn, OpFrame, payload)
}

// ///////////////////////////////////////////////
// Handshake and Read Loop
// ///////////////////////////////////////////////

// handshake sends the initial handshake frame and waits for READY.
func handshake(conn net.Conn, appID string) error {
	if err := conn.SetDeadline(time.Now().Add(HandshakeTimeout)); err == nil {
		defer conn.SetDeadline(time.Time{})
	}

	payload, err := json.Marshal(map[string]any{
		"v":         1,
		"client_id": appID,
	})
	if err != nil {
		return fmt.Errorf("marshaling handshake: %w", err)
	}
	if err := WriteFrame(conn, OpHandshake, payload); err != nil {
		return fmt.Errorf("writing handshake: %w", err)
	}

	opcode, respData, err := DecodeFrame(conn)
	if err != nil {
		return fmt.Errorf("reading handshake response: %w", err)
	}
	if opcode == OpClose {
		return fmt.Errorf("handshake rejected: %s", closeReason(respData))
	}
	if opcode != OpFrame {
		return fmt.Errorf("unexpected handshake response opcode: %d", opcode)
	}

	var resp message
	if err := json.Unmarshal(respData, &resp); err != nil {
		return fmt.Errorf("parsing handshake response: %w", err)
	}
	if resp.Evt == "ERROR" {
		var ed errorData
		_ = json.Unmarshal(resp.Data, &ed)
		return fmt.Errorf("handshake rejected: %s", ed.Message)
	}
	if resp.Evt != "READY" {
		return fmt.Errorf("unexpected handshake event %q", resp.Evt)
	}
	return nil
}

// readLoop consumes frames until conn fails. PING is answered with PONG,
// ERROR events are logged, CLOSE ends the loop.
func (c *Client) readLoop(conn net.Conn, done chan struct{}) {
	var reason error
	defer func() {
		c.mu.Lock()
		// A conn that is no longer current was closed locally.
		if c.conn == conn {
			c.conn = nil
			c.err = reason
			conn.Close()
		}
		c.mu.Unlock()
		close(done)
	}()

	for {
		opcode, payload, err := DecodeFrame(conn)
		if err != nil {
			reason = err
			return
		}

		switch opcode {
		case OpPing:
			c.mu.Lock()
			if c.conn == conn {
				err = WriteFrame(conn, OpPong, payload)
			}
			c.mu.Unlock()
			if err != nil {
				reason = fmt.Errorf("writing pong: %w", err)
				return
			}
		case OpClose:
			reason = fmt.Errorf("%w: %s", ErrClosedByDiscord, closeReason(payload))
			return
		case OpFrame:
			var msg message
			if err := json.Unmarshal(payload, &msg); err != nil {
				c.log.Warn("discord sent malformed frame", "error", err)
				continue
			}
			if msg.Evt == "ERROR" {
				var ed errorData
				_ = json.Unmarshal(msg.Data, &ed)
				c.log.Warn("discord rejected command", "cmd", msg.Cmd, "nonce", msg.Nonce, "code", ed.Code, "message", ed.Message)
			}
		}
	}
}

// closeReason extracts the message from a CLOSE payload.
func closeReason(payload []byte) string {
	var ed errorData
	if err := json.Unmarshal(payload, &ed); err != nil || ed.Message == "" {
		return "no reason given"
	}
	return fmt.Sprintf("%s (code %d)", ed.Message, ed.Code)
}
