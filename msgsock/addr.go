// Package msgsock provides request/reply message sockets over TCP.
//
// A Rep socket binds an address, fair-queues requests from any number of
// connected peers, and answers them strictly one at a time. A Req socket
// connects to one Rep socket and alternates send/receive. Messages are
// multi-frame (see the protocol package): one JSON envelope frame plus any
// binary payload frames.
//
// Sockets are not safe for concurrent use; drive each from one goroutine,
// like the serve loop does.
package msgsock

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Address defaults. The wire service has a fixed well-known port; binding
// defaults to all interfaces and connecting to loopback.
const (
	DefaultProtocol    = "tcp"
	DefaultPort        = "60606"
	DefaultBindHost    = "*"
	DefaultConnectHost = "127.0.0.1"
)

// Socket state errors.
var (
	// ErrTimeout: no message arrived within the receive timeout.
	ErrTimeout = errors.New("receive timed out")
	// ErrClosed: the socket was closed.
	ErrClosed = errors.New("socket closed")
	// ErrState: send/receive called out of turn, violating strict
	// request/reply alternation.
	ErrState = errors.New("request/reply out of turn")
)

// Addr is a parsed `protocol://host:port` socket address.
type Addr struct {
	Protocol string
	Host     string
	Port     string
}

// DefaultBindAddr returns the well-known server address, bound on all
// interfaces.
func DefaultBindAddr() string {
	return DefaultProtocol + "://" + DefaultBindHost + ":" + DefaultPort
}

// DefaultConnectAddr returns the well-known server address on loopback.
func DefaultConnectAddr() string {
	return DefaultProtocol + "://" + DefaultConnectHost + ":" + DefaultPort
}

// ParseAddr parses `protocol://host:port`. Only tcp is supported. The host
// may be "*" or empty, meaning all interfaces for a bind and loopback for a
// connect.
func ParseAddr(s string) (*Addr, error) {
	proto, rest, ok := strings.Cut(s, "://")
	if !ok {
		return nil, fmt.Errorf("address %q is not of the form protocol://host:port", s)
	}
	if proto != "tcp" {
		return nil, fmt.Errorf("unsupported protocol %q", proto)
	}
	host, port, err := net.SplitHostPort(rest)
	if err != nil {
		return nil, fmt.Errorf("bad host:port in %q: %w", s, err)
	}
	return &Addr{Protocol: proto, Host: host, Port: port}, nil
}

func (a *Addr) String() string {
	return a.Protocol + "://" + a.Host + ":" + a.Port
}

// bindTarget returns the net.Listen address: "*" and "" bind all interfaces.
func (a *Addr) bindTarget() string {
	if a.Host == DefaultBindHost || a.Host == "" {
		return ":" + a.Port
	}
	return net.JoinHostPort(a.Host, a.Port)
}

// dialTarget returns the net.Dial address: "*" and "" connect to loopback.
func (a *Addr) dialTarget() string {
	if a.Host == DefaultBindHost || a.Host == "" {
		return net.JoinHostPort(DefaultConnectHost, a.Port)
	}
	return net.JoinHostPort(a.Host, a.Port)
}
