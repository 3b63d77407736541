// Package runner serves calls in the background so the host application can
// keep running its own loop. It wraps a server's bind+serve and exposes the
// same stop contract.
package runner

import (
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/napratin/lumos/server"
)

// Announcer publishes a server's bind address to a directory while it is
// serving. Implemented by discovery.Directory.
type Announcer interface {
	Announce(service, addr string) error
	Withdraw(service, addr string) error
}

// Runner runs one server on a background goroutine.
type Runner struct {
	srv  *server.Server
	addr string
	log  *zap.Logger

	announcer Announcer
	service   string

	mu       sync.Mutex
	done     chan struct{}
	serveErr error
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the runner's logger. Default is a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(r *Runner) { r.log = log }
}

// WithAnnouncer publishes the bind address under the given service name for
// the lifetime of the run.
func WithAnnouncer(a Announcer, service string) Option {
	return func(r *Runner) {
		r.announcer = a
		r.service = service
	}
}

// New creates a runner that will serve srv on addr.
func New(srv *server.Server, addr string, opts ...Option) *Runner {
	r := &Runner{srv: srv, addr: addr, log: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start binds the server and launches the serve loop on a background
// goroutine. The bind happens before Start returns, so a caller may connect
// a client immediately without racing a not-yet-bound socket.
func (r *Runner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done != nil {
		return fmt.Errorf("runner already started")
	}

	if err := r.srv.Bind(r.addr); err != nil {
		return err
	}
	if r.announcer != nil {
		if err := r.announcer.Announce(r.service, r.addr); err != nil {
			r.srv.Close()
			return fmt.Errorf("announce %s: %w", r.service, err)
		}
	}

	r.done = make(chan struct{})
	go func() {
		defer close(r.done)
		if err := r.srv.Serve(); err != nil {
			r.log.Error("serve loop failed", zap.Error(err))
			r.mu.Lock()
			r.serveErr = err
			r.mu.Unlock()
		}
	}()
	r.log.Info("serving in background", zap.String("addr", r.addr))
	return nil
}

// Stop stops the server, waits for the serve loop to exit, withdraws any
// announcement, and closes the socket. It returns the serve loop's error, if
// any, combined with close errors.
func (r *Runner) Stop() error {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done == nil {
		return fmt.Errorf("runner not started")
	}

	r.srv.Stop()
	<-done

	var err error
	if r.announcer != nil {
		err = multierr.Append(err, r.announcer.Withdraw(r.service, r.addr))
	}
	err = multierr.Append(err, r.srv.Close())

	r.mu.Lock()
	err = multierr.Append(err, r.serveErr)
	r.mu.Unlock()
	return err
}

// Done is closed when the serve loop has exited, whether by Stop or by a
// transport failure.
func (r *Runner) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}
