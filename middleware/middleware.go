// Package middleware lets the server wrap its dispatch step with reusable
// behavior: logging, rate limiting, panic recovery, timeouts.
//
// Chain composes middlewares in the onion model:
//
//	Chain(A, B, C)(handler) → A(B(C(handler)))
//
// so A sees the request first and the reply last.
package middleware

import (
	"context"

	"github.com/napratin/lumos/wire"
)

// HandlerFunc handles one decoded request and produces the reply to send.
type HandlerFunc func(ctx context.Context, req *wire.Request) wire.Reply

// Middleware wraps a handler with additional behavior.
type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares into one, applied in the order given.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
