package middleware

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/napratin/lumos/wire"
)

func TestChainOrder(t *testing.T) {
	var trace []string
	mark := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, req *wire.Request) wire.Reply {
				trace = append(trace, name+"-before")
				reply := next(ctx, req)
				trace = append(trace, name+"-after")
				return reply
			}
		}
	}

	handler := Chain(mark("A"), mark("B"))(func(ctx context.Context, req *wire.Request) wire.Reply {
		trace = append(trace, "handler")
		return &wire.ValueReply{Value: nil}
	})
	handler(context.Background(), &wire.Request{Call: "x"})

	want := []string{"A-before", "B-before", "handler", "B-after", "A-after"}
	if len(trace) != len(want) {
		t.Fatalf("trace %v, want %v", trace, want)
	}
	for i := range want {
		if trace[i] != want[i] {
			t.Fatalf("trace %v, want %v", trace, want)
		}
	}
}

func TestRateLimit(t *testing.T) {
	handler := RateLimit(1, 1)(func(ctx context.Context, req *wire.Request) wire.Reply {
		return &wire.ValueReply{Value: "ok"}
	})

	req := &wire.Request{Call: "x"}
	if _, ok := handler(context.Background(), req).(*wire.ValueReply); !ok {
		t.Fatal("first call should pass")
	}
	reply := handler(context.Background(), req)
	er, ok := reply.(*wire.ErrorReply)
	if !ok {
		t.Fatalf("second call should be limited, got %T", reply)
	}
	if er.Msg != "rate limit exceeded" {
		t.Errorf("msg: got %q", er.Msg)
	}
}

func TestRecovery(t *testing.T) {
	handler := Recovery(zap.NewNop())(func(ctx context.Context, req *wire.Request) wire.Reply {
		panic("boom")
	})

	reply := handler(context.Background(), &wire.Request{Call: "x"})
	er, ok := reply.(*wire.ErrorReply)
	if !ok {
		t.Fatalf("expected error reply, got %T", reply)
	}
	if er.Msg != "panic: boom" {
		t.Errorf("msg: got %q", er.Msg)
	}
}

func TestTimeout(t *testing.T) {
	handler := Timeout(20 * time.Millisecond)(func(ctx context.Context, req *wire.Request) wire.Reply {
		time.Sleep(200 * time.Millisecond)
		return &wire.ValueReply{Value: "late"}
	})

	start := time.Now()
	reply := handler(context.Background(), &wire.Request{Call: "slow"})
	if _, ok := reply.(*wire.ErrorReply); !ok {
		t.Fatalf("expected error reply, got %T", reply)
	}
	if time.Since(start) > time.Second {
		t.Error("timeout did not trigger promptly")
	}
}

func TestTimeoutFastCallPasses(t *testing.T) {
	handler := Timeout(time.Second)(func(ctx context.Context, req *wire.Request) wire.Reply {
		return &wire.ValueReply{Value: "fast"}
	})
	reply := handler(context.Background(), &wire.Request{Call: "fast"})
	vr, ok := reply.(*wire.ValueReply)
	if !ok || vr.Value != "fast" {
		t.Fatalf("got %v", reply)
	}
}
