package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/napratin/lumos/wire"
)

// RateLimit rejects calls beyond r per second (token bucket with the given
// burst) with an error reply instead of invoking the target.
func RateLimit(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *wire.Request) wire.Reply {
			if !limiter.Allow() {
				return &wire.ErrorReply{Msg: "rate limit exceeded"}
			}
			return next(ctx, req)
		}
	}
}
