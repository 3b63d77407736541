package msgsock

import (
	"errors"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/napratin/lumos/protocol"
)

// Req is the request side of a request/reply socket pair. Send and Recv must
// strictly alternate: a second Send before the reply is consumed returns
// ErrState.
type Req struct {
	conn     net.Conn
	log      *zap.Logger
	awaiting bool // a request is in flight, next step is Recv
}

// Dial connects a Req socket to a `tcp://host:port` address, bounded by
// connectTimeout when it is positive.
func Dial(addr string, connectTimeout time.Duration, opts ...Option) (*Req, error) {
	c := applyOptions(opts)
	a, err := ParseAddr(addr)
	if err != nil {
		return nil, err
	}
	var conn net.Conn
	if connectTimeout > 0 {
		conn, err = net.DialTimeout("tcp", a.dialTarget(), connectTimeout)
	} else {
		conn, err = net.Dial("tcp", a.dialTarget())
	}
	if err != nil {
		return nil, err
	}
	return &Req{conn: conn, log: c.log}, nil
}

// Send writes one request message.
func (s *Req) Send(frames [][]byte) error {
	if s.awaiting {
		return ErrState
	}
	if err := protocol.WriteMessage(s.conn, frames); err != nil {
		return err
	}
	s.awaiting = true
	return nil
}

// Recv waits up to timeout for the reply to the last sent request. A timeout
// <= 0 blocks indefinitely. On ErrTimeout the socket still awaits the same
// reply: Recv may be retried, but a new Send is refused until the reply is
// consumed.
func (s *Req) Recv(timeout time.Duration) ([][]byte, error) {
	if !s.awaiting {
		return nil, ErrState
	}
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := s.conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	frames, err := protocol.ReadMessage(s.conn)
	if err != nil {
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			return nil, ErrTimeout
		}
		return nil, err
	}
	s.awaiting = false
	return frames, nil
}

// Close releases the socket.
func (s *Req) Close() error {
	return s.conn.Close()
}
