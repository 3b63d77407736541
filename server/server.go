// Package server implements the reply side of the RPC layer: it binds a
// reply socket and runs a blocking receive/dispatch/reply loop against a
// call registry.
//
// Request processing pipeline:
//
//	Recv (with timeout, so Stop is noticed between iterations)
//	  → decode request envelope → middleware chain → dispatch
//	    → registry lookup (helpers first) → invoke (panics recovered)
//	  → encode reply by the target's payload kind → Send
//
// Every decode or invocation failure becomes an error reply; only transport
// breakdown and Stop end the loop.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/napratin/lumos/middleware"
	"github.com/napratin/lumos/msgsock"
	"github.com/napratin/lumos/registry"
	"github.com/napratin/lumos/wire"
)

// DefaultRecvTimeout bounds each blocking receive so the serve loop can
// check the stop flag. Stop latency is at most this long.
const DefaultRecvTimeout = 4 * time.Second

// State is the server lifecycle state.
type State int32

const (
	Unbound State = iota
	Bound
	Serving
	Stopped
)

func (s State) String() string {
	switch s {
	case Unbound:
		return "unbound"
	case Bound:
		return "bound"
	case Serving:
		return "serving"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Server serves calls exported in a registry over one reply socket.
type Server struct {
	reg         *registry.Registry
	log         *zap.Logger
	guard       *BindGuard
	recvTimeout time.Duration
	middlewares []middleware.Middleware
	handler     middleware.HandlerFunc

	sock  *msgsock.Rep
	addr  string // canonical requested bind address, held in the guard
	state atomic.Int32
	stop  atomic.Bool
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server's logger. Default is a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Server) { s.log = log }
}

// WithRecvTimeout sets the receive timeout of the serve loop. Callers that
// need prompt Stop should set a short timeout.
func WithRecvTimeout(d time.Duration) Option {
	return func(s *Server) { s.recvTimeout = d }
}

// WithGuard replaces the process-wide DefaultGuard.
func WithGuard(g *BindGuard) Option {
	return func(s *Server) { s.guard = g }
}

// New creates a server dispatching against reg.
func New(reg *registry.Registry, opts ...Option) *Server {
	s := &Server{
		reg:         reg,
		log:         zap.NewNop(),
		guard:       DefaultGuard,
		recvTimeout: DefaultRecvTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Use appends a dispatch middleware. Middlewares must be added before Serve;
// the chain is built once when serving starts.
func (s *Server) Use(mw middleware.Middleware) {
	s.middlewares = append(s.middlewares, mw)
}

// State returns the current lifecycle state.
func (s *Server) State() State {
	return State(s.state.Load())
}

// BoundAddr returns the actual bound network address, or nil before Bind.
func (s *Server) BoundAddr() net.Addr {
	if s.sock == nil {
		return nil
	}
	return s.sock.Addr()
}

// Bind claims addr in the guard and opens the reply socket. It fails if
// another live server in the same process already holds the address, or if
// the server is not in the unbound state.
func (s *Server) Bind(addr string) error {
	if st := s.State(); st != Unbound {
		return fmt.Errorf("bind in state %s", st)
	}
	a, err := msgsock.ParseAddr(addr)
	if err != nil {
		return err
	}
	canonical := a.String()
	if err := s.guard.Acquire(canonical); err != nil {
		return err
	}
	sock, err := msgsock.Listen(addr, msgsock.WithLogger(s.log.Named("msgsock")))
	if err != nil {
		s.guard.Release(canonical)
		return err
	}
	s.sock = sock
	s.addr = canonical
	s.state.Store(int32(Bound))
	s.log.Info("bound", zap.String("addr", canonical))
	return nil
}

// Serve runs the receive/dispatch/reply loop until Stop is called or the
// transport fails. It blocks the calling goroutine; see the runner package
// for serving in the background.
func (s *Server) Serve() error {
	if !s.state.CompareAndSwap(int32(Bound), int32(Serving)) {
		return fmt.Errorf("serve in state %s", s.State())
	}
	s.handler = middleware.Chain(s.middlewares...)(s.dispatch)
	s.log.Info("serving")

	for !s.stop.Load() {
		frames, err := s.sock.Recv(s.recvTimeout)
		if errors.Is(err, msgsock.ErrTimeout) {
			continue
		}
		if errors.Is(err, msgsock.ErrClosed) {
			break
		}
		if err != nil {
			s.state.Store(int32(Stopped))
			return fmt.Errorf("receive: %w", err)
		}

		reply := s.handleMessage(frames)
		out, err := wire.EncodeReply(reply)
		if err != nil {
			// The reply itself would not encode (e.g. a value the JSON
			// encoder rejects). The peer still gets an answer.
			s.log.Error("encode reply failed", zap.Error(err))
			out, _ = wire.EncodeReply(&wire.ErrorReply{Msg: "Error"})
		}
		if err := s.sock.Send(out); err != nil {
			// The peer missed its reply and will time out on its own
			// receive; the loop keeps serving other peers.
			s.log.Warn("send failed", zap.Error(err))
		}
	}

	s.state.Store(int32(Stopped))
	s.log.Info("serve loop done")
	return nil
}

// Stop requests the serve loop to exit. It is checked between iterations,
// so shutdown takes up to the receive timeout; an in-progress invocation is
// never interrupted.
func (s *Server) Stop() {
	s.stop.Store(true)
}

// Close releases the bind address and the socket. Safe after Stop, or
// instead of it when the loop should die with the socket.
func (s *Server) Close() error {
	var err error
	if s.sock != nil {
		err = multierr.Append(err, s.sock.Close())
	}
	if s.addr != "" {
		s.guard.Release(s.addr)
		s.addr = ""
	}
	s.state.Store(int32(Stopped))
	return err
}

// handleMessage decodes one request message and runs it through the
// middleware chain. Decode failures short-circuit to the matching taxonomy
// error reply.
func (s *Server) handleMessage(frames [][]byte) wire.Reply {
	if len(frames) != 1 {
		s.log.Warn("request with unexpected extra frames", zap.Int("frames", len(frames)))
		return &wire.ErrorReply{Msg: wire.ErrBadRequest.Error()}
	}
	req, err := wire.DecodeRequest(frames[0])
	if err != nil {
		s.log.Warn("bad request", zap.Error(err))
		switch {
		case errors.Is(err, wire.ErrBadJSON):
			return &wire.ErrorReply{Msg: wire.ErrBadJSON.Error()}
		case errors.Is(err, wire.ErrBadParams):
			return &wire.ErrorReply{Msg: wire.ErrBadParams.Error()}
		default:
			return &wire.ErrorReply{Msg: wire.ErrBadRequest.Error()}
		}
	}
	return s.handler(context.Background(), req)
}

// dispatch resolves and invokes the target, translating every failure into
// an error reply.
func (s *Server) dispatch(ctx context.Context, req *wire.Request) wire.Reply {
	target, ok := s.reg.Lookup(req.Call)
	if !ok {
		s.log.Warn("unknown call", zap.String("call", req.Call))
		return &wire.ErrorReply{Msg: wire.ErrUnknownCall.Error()}
	}

	ret, err := s.invoke(target, req.Params)
	if err != nil {
		if errors.Is(err, wire.ErrBadParams) {
			s.log.Warn("bad params", zap.String("call", req.Call), zap.Error(err))
			return &wire.ErrorReply{Msg: wire.ErrBadParams.Error()}
		}
		s.log.Warn("call raised", zap.String("call", req.Call), zap.Error(err))
		return &wire.ErrorReply{Msg: err.Error()}
	}
	return encodeReturn(target, ret)
}

// invoke calls the target, recovering a panic into an invocation fault.
func (s *Server) invoke(target *registry.Target, params map[string]any) (ret any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return target.Invoke(params)
}

// encodeReturn wraps a target's return value in the reply variant fixed by
// its payload kind. A return value that does not fit the declared kind is an
// invocation fault, not a re-kinding.
func encodeReturn(target *registry.Target, ret any) wire.Reply {
	switch target.Kind() {
	case registry.Value:
		return &wire.ValueReply{Value: ret}

	case registry.Raw:
		switch v := ret.(type) {
		case nil:
			return &wire.RawReply{}
		case []byte:
			return &wire.RawReply{Payloads: [][]byte{v}}
		case [][]byte:
			return &wire.RawReply{Payloads: v}
		default:
			return &wire.ErrorReply{Msg: fmt.Sprintf("raw call %s returned %T, want bytes", target.Name(), ret)}
		}

	case registry.Image:
		im, ok := ret.(*wire.Image)
		if !ok || im == nil {
			return &wire.ErrorReply{Msg: fmt.Sprintf("image call %s returned no image", target.Name())}
		}
		if err := im.Validate(); err != nil {
			return &wire.ErrorReply{Msg: err.Error()}
		}
		return &wire.ImageReply{Image: im}

	default:
		return &wire.ErrorReply{Msg: fmt.Sprintf("call %s has unknown payload kind", target.Name())}
	}
}
