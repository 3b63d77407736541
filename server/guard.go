package server

import (
	"fmt"
	"sync"
)

// BindGuard tracks live bind addresses so two servers in one process cannot
// silently collide on the same port. It is explicit shared state: servers
// default to the process-wide DefaultGuard, and independent services that
// should not see each other's binds can be given their own guard.
//
// The guard keys on the requested address string in canonical form, not the
// resolved socket address.
type BindGuard struct {
	mu    sync.Mutex
	addrs map[string]struct{}
}

// NewBindGuard creates an empty guard.
func NewBindGuard() *BindGuard {
	return &BindGuard{addrs: make(map[string]struct{})}
}

// DefaultGuard is the process-wide guard used by servers unless WithGuard
// overrides it.
var DefaultGuard = NewBindGuard()

// Acquire claims an address. It fails if another live server already holds
// it.
func (g *BindGuard) Acquire(addr string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, held := g.addrs[addr]; held {
		return fmt.Errorf("address %s is already bound in this process", addr)
	}
	g.addrs[addr] = struct{}{}
	return nil
}

// Release frees an address claimed by Acquire.
func (g *BindGuard) Release(addr string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.addrs, addr)
}
