// Package wire defines the JSON envelopes exchanged between RPC clients and
// servers, and the codec between envelopes and in-memory request/reply
// values.
//
// Every message starts with one JSON envelope frame. Replies that carry
// binary data (raw buffers, image pixels) append binary frames after the
// envelope; see the protocol package for framing.
package wire

import "errors"

// Envelope kind tags.
const (
	KindCall  = "call"
	KindValue = "value"
	KindRaw   = "raw"
	KindImage = "image"
	KindMsg   = "msg"
)

// Envelope status tags.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Request decode failures. The server answers each with the matching error
// reply instead of dropping the connection.
var (
	// ErrBadJSON: the envelope could not be parsed and was not a valid
	// bare-token shorthand.
	ErrBadJSON = errors.New("JSON error")
	// ErrBadRequest: parsed, but missing required keys or unknown kind.
	ErrBadRequest = errors.New("Bad request")
	// ErrBadParams: params is not a key/value mapping, or does not bind to
	// the target's declared parameter names.
	ErrBadParams = errors.New("Bad params")
	// ErrUnknownCall: the call name is not registered.
	ErrUnknownCall = errors.New("Unknown call")
)

// Request is a decoded call request.
type Request struct {
	Call   string
	Params map[string]any
}

// Reply is the tagged union of the four reply shapes. Exactly one variant is
// sent per request.
type Reply interface {
	isReply()
}

// ValueReply carries the return value inline in the envelope.
type ValueReply struct {
	Value any
}

// RawReply carries an ordered list of opaque byte buffers as binary frames
// after the envelope. Payloads may be empty only when the target explicitly
// returned nothing.
type RawReply struct {
	Payloads [][]byte
}

// ImageReply carries one image: shape and dtype in the envelope, the
// flattened pixel buffer as a single binary frame.
type ImageReply struct {
	Image *Image
}

// ErrorReply reports a server-side failure as text.
type ErrorReply struct {
	Msg string
}

func (ValueReply) isReply() {}
func (RawReply) isReply()   {}
func (ImageReply) isReply() {}
func (ErrorReply) isReply() {}
