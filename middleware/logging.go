package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/napratin/lumos/wire"
)

// Logging logs each dispatched call with its duration, and any error reply
// at warn level.
func Logging(log *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *wire.Request) wire.Reply {
			start := time.Now()
			reply := next(ctx, req)
			fields := []zap.Field{
				zap.String("call", req.Call),
				zap.Duration("duration", time.Since(start)),
			}
			if er, ok := reply.(*wire.ErrorReply); ok {
				log.Warn("call failed", append(fields, zap.String("msg", er.Msg))...)
			} else {
				log.Debug("call served", fields...)
			}
			return reply
		}
	}
}
