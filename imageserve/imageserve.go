// Package imageserve publishes a host application's latest image over the
// RPC layer and gives remote viewers a one-call read API.
//
// The server side is a single slot: the host writes frames as fast as it
// likes, readers always get the most recent one. The first read after a
// reset waits briefly for a frame to appear, so a viewer started alongside a
// capture loop does not fail on an empty slot.
package imageserve

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/napratin/lumos/client"
	"github.com/napratin/lumos/registry"
	"github.com/napratin/lumos/wire"
)

// Defaults for the image service.
const (
	DefaultName     = "ImageServer"
	DefaultPort     = "61616"
	DefaultReadCall = "ImageServer.read"
	// DefaultReadTimeout is generous so a remote server gets time to start,
	// without hanging a viewer forever at the end.
	DefaultReadTimeout = 10 * time.Second

	waitInterval    = 100 * time.Millisecond
	maxWaitDuration = 2 * time.Second
)

// ErrNoImage reports that no image has been written (or the server was
// reset) when a read arrived.
var ErrNoImage = errors.New("no image available")

// ImageServer holds the latest written image and exports it as an
// Image-kind call named "<name>.read".
type ImageServer struct {
	name string
	log  *zap.Logger

	mu    sync.Mutex
	image *wire.Image
	fresh bool // no reader has seen an image since the last reset
}

// ServerOption configures an ImageServer.
type ServerOption func(*ImageServer)

// WithName overrides the export name (and thus the read call name).
func WithName(name string) ServerOption {
	return func(s *ImageServer) { s.name = name }
}

// WithServerLogger sets the server's logger.
func WithServerLogger(log *zap.Logger) ServerOption {
	return func(s *ImageServer) { s.log = log }
}

// NewImageServer creates an empty image server.
func NewImageServer(opts ...ServerOption) *ImageServer {
	s := &ImageServer{
		name:  DefaultName,
		log:   zap.NewNop(),
		fresh: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Export registers the server's read call in reg and rebuilds the dispatch
// table.
func (s *ImageServer) Export(reg *registry.Registry) {
	obj := registry.NewObject().Method("read", registry.Image, s.read)
	reg.RegisterObject(s.name, obj)
	reg.Rebuild()
}

// Write stores the latest image. Older images are dropped, never queued.
func (s *ImageServer) Write(im *wire.Image) {
	s.mu.Lock()
	s.image = im
	s.mu.Unlock()
}

// Reset empties the slot so readers see the server as down, and re-arms the
// first-read wait.
func (s *ImageServer) Reset() {
	s.mu.Lock()
	s.image = nil
	s.fresh = true
	s.mu.Unlock()
}

// read is the exported call. The first read after a reset waits up to
// maxWaitDuration for an image; afterwards an empty slot fails immediately.
func (s *ImageServer) read(map[string]any) (any, error) {
	s.mu.Lock()
	im, fresh := s.image, s.fresh
	s.mu.Unlock()

	if fresh && im == nil {
		deadline := time.Now().Add(maxWaitDuration)
		for im == nil && time.Now().Before(deadline) {
			time.Sleep(waitInterval)
			s.mu.Lock()
			im = s.image
			s.mu.Unlock()
		}
	}
	if im == nil {
		return nil, ErrNoImage
	}

	s.mu.Lock()
	s.fresh = false
	s.mu.Unlock()
	return im, nil
}

// ImageClient is a lightweight viewer-side wrapper exposing a simple Read
// over a remote image server.
type ImageClient struct {
	c        *client.Client
	readCall string
}

// ClientOption configures an ImageClient.
type ClientOption func(*clientConfig)

type clientConfig struct {
	readCall    string
	readTimeout time.Duration
	log         *zap.Logger
}

// WithReadCall overrides the call name used by Read.
func WithReadCall(name string) ClientOption {
	return func(c *clientConfig) { c.readCall = name }
}

// WithReadTimeout bounds how long Read waits for a reply.
func WithReadTimeout(d time.Duration) ClientOption {
	return func(c *clientConfig) { c.readTimeout = d }
}

// WithClientLogger sets the client's logger.
func WithClientLogger(log *zap.Logger) ClientOption {
	return func(c *clientConfig) { c.log = log }
}

// ConnectImageClient connects to a remote image server.
func ConnectImageClient(addr string, connectTimeout time.Duration, opts ...ClientOption) (*ImageClient, error) {
	cfg := &clientConfig{
		readCall:    DefaultReadCall,
		readTimeout: DefaultReadTimeout,
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	c, err := client.Connect(addr, connectTimeout,
		client.WithRecvTimeout(cfg.readTimeout),
		client.WithLogger(cfg.log))
	if err != nil {
		return nil, err
	}
	return &ImageClient{c: c, readCall: cfg.readCall}, nil
}

// Read fetches the remote server's current image.
func (ic *ImageClient) Read() (*wire.Image, error) {
	got, err := ic.c.Call(ic.readCall, nil)
	if err != nil {
		return nil, err
	}
	im, ok := got.(*wire.Image)
	if !ok {
		return nil, fmt.Errorf("read call returned %T, want image", got)
	}
	return im, nil
}

// Close releases the underlying client socket.
func (ic *ImageClient) Close() error {
	return ic.c.Close()
}
