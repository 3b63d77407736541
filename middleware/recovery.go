package middleware

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/napratin/lumos/wire"
)

// Recovery converts a panic anywhere in the chain below it into an error
// reply, so one faulty target cannot take down the serve loop.
func Recovery(log *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *wire.Request) (reply wire.Reply) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("panic in call",
						zap.String("call", req.Call), zap.Any("panic", r))
					reply = &wire.ErrorReply{Msg: fmt.Sprintf("panic: %v", r)}
				}
			}()
			return next(ctx, req)
		}
	}
}
