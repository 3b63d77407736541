package msgsock

import (
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/napratin/lumos/protocol"
)

// Option configures a socket.
type Option func(*config)

type config struct {
	log *zap.Logger
}

// WithLogger sets the socket's logger. Default is a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *config) { c.log = log }
}

func applyOptions(opts []Option) *config {
	c := &config{log: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type incoming struct {
	conn   *repConn
	frames [][]byte
}

type repConn struct {
	conn net.Conn
	// done signals the connection's read loop that the reply for its
	// in-flight request has been sent, so it may read the next one.
	done chan struct{}
}

// Rep is the reply side of a request/reply socket pair. It accepts any
// number of peer connections but surfaces requests one at a time: after Recv
// returns a request, the next Recv is refused until Send has answered it.
type Rep struct {
	ln      net.Listener
	log     *zap.Logger
	pending chan *incoming
	cur     *repConn // connection owed a reply, nil between exchanges
	quit    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// Listen binds a Rep socket on a `tcp://host:port` address.
func Listen(addr string, opts ...Option) (*Rep, error) {
	c := applyOptions(opts)
	a, err := ParseAddr(addr)
	if err != nil {
		return nil, err
	}
	ln, err := net.Listen("tcp", a.bindTarget())
	if err != nil {
		return nil, err
	}
	r := &Rep{
		ln:      ln,
		log:     c.log,
		pending: make(chan *incoming),
		quit:    make(chan struct{}),
		conns:   make(map[net.Conn]struct{}),
	}
	r.wg.Add(1)
	go r.acceptLoop()
	return r, nil
}

// Addr returns the actual bound network address (useful when binding port 0).
func (r *Rep) Addr() net.Addr {
	return r.ln.Addr()
}

func (r *Rep) acceptLoop() {
	defer r.wg.Done()
	for {
		conn, err := r.ln.Accept()
		if err != nil {
			select {
			case <-r.quit:
			default:
				r.log.Warn("accept failed", zap.Error(err))
			}
			return
		}
		r.mu.Lock()
		r.conns[conn] = struct{}{}
		r.mu.Unlock()

		rc := &repConn{conn: conn, done: make(chan struct{}, 1)}
		r.wg.Add(1)
		go r.readLoop(rc)
	}
}

// readLoop reads one request at a time from a peer. It does not read the
// next request until the reply to the previous one has been sent, enforcing
// alternation per connection while the pending channel fair-queues across
// connections.
func (r *Rep) readLoop(rc *repConn) {
	defer r.wg.Done()
	defer func() {
		rc.conn.Close()
		r.mu.Lock()
		delete(r.conns, rc.conn)
		r.mu.Unlock()
	}()

	for {
		frames, err := protocol.ReadMessage(rc.conn)
		if err != nil {
			// Peer closed, or sent bytes that are not our protocol.
			return
		}
		select {
		case r.pending <- &incoming{conn: rc, frames: frames}:
		case <-r.quit:
			return
		}
		select {
		case <-rc.done:
		case <-r.quit:
			return
		}
	}
}

// Recv waits up to timeout for the next request message. A timeout <= 0
// blocks until a request arrives or the socket closes. Calling Recv while a
// reply is owed returns ErrState.
func (r *Rep) Recv(timeout time.Duration) ([][]byte, error) {
	if r.cur != nil {
		return nil, ErrState
	}
	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}
	select {
	case inc := <-r.pending:
		r.cur = inc.conn
		return inc.frames, nil
	case <-timer:
		return nil, ErrTimeout
	case <-r.quit:
		return nil, ErrClosed
	}
}

// Send answers the request most recently returned by Recv. Exactly one Send
// is allowed per Recv; a second one returns ErrState. A transport write
// failure is returned, but the socket stays usable for the next exchange —
// the failed peer simply never gets its reply.
func (r *Rep) Send(frames [][]byte) error {
	if r.cur == nil {
		return ErrState
	}
	cur := r.cur
	r.cur = nil
	err := protocol.WriteMessage(cur.conn, frames)
	cur.done <- struct{}{}
	return err
}

// Close shuts the socket down: stops accepting, closes all peer
// connections, and waits for the background loops to exit.
func (r *Rep) Close() error {
	var err error
	r.once.Do(func() {
		close(r.quit)
		err = r.ln.Close()
		r.mu.Lock()
		for conn := range r.conns {
			conn.Close()
		}
		r.mu.Unlock()
		r.wg.Wait()
	})
	return err
}
