package discord

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Opcode identifies the kind of an IPC frame.
type Opcode uint32

const (
	OpHandshake Opcode = iota
	OpFrame
	OpClose
	// OpPing is a keepalive probe; it is answered with OpPong carrying the
	// same payload.
	OpPing
	OpPong
)

var opcodeNames = [...]string{"HANDSHAKE", "FRAME", "CLOSE", "PING", "PONG"}

func (o Opcode) String() string {
	if int(o) < len(opcodeNames) {
		return opcodeNames[o]
	}
	return fmt.Sprintf("OPCODE(%d)", uint32(o))
}

const (
	// frameHeaderSize covers the little-endian opcode and payload length.
	frameHeaderSize = 8
	// MaxPayloadSize bounds a single frame in either direction.
	MaxPayloadSize = 1 << 20
	// maxIPCSlots is the number of discord-ipc-N endpoints probed.
	maxIPCSlots = 10
)

var (
	// ErrPayloadTooLarge reports a frame over MaxPayloadSize.
	ErrPayloadTooLarge = errors.New("payload too large")
	// ErrIPCNotAvailable is returned when no Discord IPC endpoint answers.
	ErrIPCNotAvailable = errors.New("discord IPC not available")
)

func checkSize(n int) error {
	if n > MaxPayloadSize {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, n, MaxPayloadSize)
	}
	return nil
}

// ///////////////////////////////////////////////
// Codec
// ///////////////////////////////////////////////

// EncodeFrame lays out one frame: opcode, payload length, payload.
func EncodeFrame(op Opcode, payload []byte) ([]byte, error) {
	if err := checkSize(len(payload)); err != nil {
		return nil, err
	}
	frame := binary.LittleEndian.AppendUint32(make([]byte, 0, frameHeaderSize+len(payload)), uint32(op))
	frame = binary.LittleEndian.AppendUint32(frame, uint32(len(payload)))
	return append(frame, payload...), nil
}

// DecodeFrame reads exactly one frame from r. A stream that ends before any
// byte of the frame yields io.EOF; one that ends mid-frame yields
// io.ErrUnexpectedEOF.
func DecodeFrame(r io.Reader) (Opcode, []byte, error) {
	var hdr [frameHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, fmt.Errorf("reading frame header: %w", err)
	}
	op := Opcode(binary.LittleEndian.Uint32(hdr[:4]))
	n := binary.LittleEndian.Uint32(hdr[4:])
	if n > MaxPayloadSize {
		return 0, nil, checkSize(int(n))
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, fmt.Errorf("reading frame payload: %w", err)
	}
	return op, payload, nil
}

// WriteFrame encodes and writes one frame with a single Write call so
// concurrent writers never interleave partial frames.
func WriteFrame(w io.Writer, op Opcode, payload []byte) error {
	frame, err := EncodeFrame(op, payload)
	if err != nil {
		return fmt.Errorf("encoding %s frame: %w", op, err)
	}
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("writing %s frame: %w", op, err)
	}
	return nil
}
