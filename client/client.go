// Package client implements the request side of the RPC layer: it connects
// one request socket to a server and issues blocking calls.
//
// A call failure comes in two distinguishable flavors: a *ServerError means
// the server answered with an error reply (the call was rejected or the
// target raised); ErrNoReply means no usable reply arrived at all (receive
// timeout, transport breakdown, undecodable reply), so the server may be
// unreachable.
package client

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/napratin/lumos/msgsock"
	"github.com/napratin/lumos/wire"
)

// DefaultRecvTimeout bounds each blocking call waiting for its reply.
const DefaultRecvTimeout = 4 * time.Second

// ErrNoReply reports that no reply was received for a call.
var ErrNoReply = errors.New("no reply")

// ServerError carries the message of a server-reported error reply.
type ServerError struct {
	Call string
	Msg  string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("call %s: server error: %s", e.Call, e.Msg)
}

// Client issues calls over one request socket. It is not safe for
// concurrent use; requests alternate strictly with replies.
type Client struct {
	sock        *msgsock.Req
	log         *zap.Logger
	recvTimeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client's logger. Default is a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithRecvTimeout sets how long Call waits for a reply. Zero or negative
// waits indefinitely.
func WithRecvTimeout(d time.Duration) Option {
	return func(c *Client) { c.recvTimeout = d }
}

// Connect opens a request socket to a `tcp://host:port` address, bounded by
// connectTimeout when positive.
func Connect(addr string, connectTimeout time.Duration, opts ...Option) (*Client, error) {
	c := &Client{
		log:         zap.NewNop(),
		recvTimeout: DefaultRecvTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	sock, err := msgsock.Dial(addr, connectTimeout, msgsock.WithLogger(c.log.Named("msgsock")))
	if err != nil {
		return nil, err
	}
	c.sock = sock
	c.log.Debug("connected", zap.String("addr", addr))
	return c, nil
}

// Call invokes a named target and returns its decoded result. The dynamic
// type follows the reply kind: a plain value for Value replies, []byte for a
// single-buffer Raw reply, [][]byte for a multi-buffer one, and *wire.Image
// for Image replies.
func (c *Client) Call(name string, params map[string]any) (any, error) {
	data, err := wire.EncodeRequest(&wire.Request{Call: name, Params: params})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	if err := c.sock.Send([][]byte{data}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoReply, err)
	}

	frames, err := c.sock.Recv(c.recvTimeout)
	if err != nil {
		c.log.Warn("no reply", zap.String("call", name), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrNoReply, err)
	}
	reply, err := wire.DecodeReply(frames)
	if err != nil {
		c.log.Warn("undecodable reply", zap.String("call", name), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrNoReply, err)
	}

	switch r := reply.(type) {
	case *wire.ValueReply:
		return r.Value, nil
	case *wire.RawReply:
		if len(r.Payloads) == 1 {
			return r.Payloads[0], nil
		}
		return r.Payloads, nil
	case *wire.ImageReply:
		return r.Image, nil
	case *wire.ErrorReply:
		return nil, &ServerError{Call: name, Msg: r.Msg}
	default:
		return nil, fmt.Errorf("%w: unknown reply variant %T", ErrNoReply, reply)
	}
}

// Close releases the socket.
func (c *Client) Close() error {
	return c.sock.Close()
}
