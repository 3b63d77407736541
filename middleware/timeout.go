package middleware

import (
	"context"
	"time"

	"github.com/napratin/lumos/wire"
)

// Timeout bounds a call's handling time. On expiry the caller gets an error
// reply immediately; the invocation itself keeps running to completion in
// the background and its result is discarded — there is no mid-flight
// cancellation of targets.
func Timeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *wire.Request) wire.Reply {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			done := make(chan wire.Reply, 1)
			go func() {
				done <- next(ctx, req)
			}()

			select {
			case reply := <-done:
				return reply
			case <-ctx.Done():
				return &wire.ErrorReply{Msg: "call timed out"}
			}
		}
	}
}
