// Package protocol implements the binary frame layer of the lumos RPC wire
// format.
//
// A frame is a fixed 9-byte header followed by a variable-length body. The
// receiver reads the header first to learn the body length, then reads exactly
// that many bytes, so frame boundaries survive TCP's stream semantics.
//
// Frame format:
//
//	0      3  4  5         9
//	┌──────┬──┬──┬─────────┬───────────────┐
//	│magic │v │fl│ bodyLen │    body ...   │
//	│ lms  │01│  │ uint32  │ bodyLen bytes │
//	└──────┴──┴──┴─────────┴───────────────┘
//
// A logical message is one or more frames; every frame except the last
// carries the FlagMore bit. The first frame of a message is the JSON
// envelope, any following frames are binary payloads (raw buffers, flattened
// image data).
package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Magic number bytes: "lms". Used to reject non-protocol peers (e.g. an HTTP
// client hitting the RPC port) before allocating a body buffer.
const (
	MagicByte1 byte = 0x6c // 'l'
	MagicByte2 byte = 0x6d // 'm'
	MagicByte3 byte = 0x73 // 's'
	Version    byte = 0x01
	HeaderSize int  = 9 // 3 (magic) + 1 (version) + 1 (flags) + 4 (bodyLen)
)

// MaxBodyLen bounds a single frame body. The length field is attacker
// controlled; without a cap a garbage header could demand a 4 GiB allocation.
const MaxBodyLen = 1 << 28 // 256 MiB

// Flags is the frame flag byte.
type Flags byte

// FlagMore marks a frame that is followed by at least one more frame of the
// same logical message.
const FlagMore Flags = 0x01

// Header represents the fixed 9-byte frame header.
type Header struct {
	Flags   Flags  // FlagMore when body frames follow
	BodyLen uint32 // Body length in bytes
}

// Encode writes one complete frame (header + body) to w. The caller must
// serialize writes if multiple goroutines share the same writer, otherwise
// frames interleave and corrupt the stream.
func Encode(w io.Writer, h *Header, body []byte) error {
	buf := make([]byte, HeaderSize)

	copy(buf[0:3], []byte{MagicByte1, MagicByte2, MagicByte3})
	buf[3] = Version
	buf[4] = byte(h.Flags)
	binary.BigEndian.PutUint32(buf[5:9], h.BodyLen)

	if _, err := w.Write(buf); err != nil {
		return err
	}
	if _, err := w.Write(body); err != nil {
		return err
	}
	return nil
}

// Decode reads one complete frame (header + body) from r. It validates the
// magic number, version, and body length. io.ReadFull guarantees exactly N
// bytes are read, so partial reads never desynchronize the stream.
func Decode(r io.Reader) (*Header, []byte, error) {
	headerBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		return nil, nil, err
	}

	if headerBuf[0] != MagicByte1 || headerBuf[1] != MagicByte2 || headerBuf[2] != MagicByte3 {
		return nil, nil, fmt.Errorf("invalid magic number: %x", headerBuf[0:3])
	}
	if headerBuf[3] != Version {
		return nil, nil, fmt.Errorf("unsupported version: %d", headerBuf[3])
	}

	bodyLen := binary.BigEndian.Uint32(headerBuf[5:9])
	if bodyLen > MaxBodyLen {
		return nil, nil, fmt.Errorf("frame body too large: %d bytes", bodyLen)
	}

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, nil, err
	}

	return &Header{
		Flags:   Flags(headerBuf[4]),
		BodyLen: bodyLen,
	}, body, nil
}

// WriteMessage writes a logical message as len(frames) frames, setting
// FlagMore on every frame but the last. An empty message is a single empty
// frame.
func WriteMessage(w io.Writer, frames [][]byte) error {
	if len(frames) == 0 {
		frames = [][]byte{nil}
	}
	for i, body := range frames {
		h := Header{BodyLen: uint32(len(body))}
		if i < len(frames)-1 {
			h.Flags |= FlagMore
		}
		if err := Encode(w, &h, body); err != nil {
			return err
		}
	}
	return nil
}

// ReadMessage reads frames from r until one without FlagMore arrives and
// returns them in order.
func ReadMessage(r io.Reader) ([][]byte, error) {
	var frames [][]byte
	for {
		h, body, err := Decode(r)
		if err != nil {
			return nil, err
		}
		frames = append(frames, body)
		if h.Flags&FlagMore == 0 {
			return frames, nil
		}
	}
}
