package runner

import (
	"testing"
	"time"

	"github.com/napratin/lumos/client"
	"github.com/napratin/lumos/registry"
	"github.com/napratin/lumos/server"
)

func pingRegistry() *registry.Registry {
	reg := registry.New()
	reg.Register("ping", registry.Value, func(map[string]any) (any, error) {
		return "pong", nil
	})
	reg.Rebuild()
	return reg
}

func TestStartThenImmediateConnect(t *testing.T) {
	svr := server.New(pingRegistry(),
		server.WithRecvTimeout(50*time.Millisecond),
		server.WithGuard(server.NewBindGuard()))
	r := New(svr, "tcp://127.0.0.1:60641")
	if err := r.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer r.Stop()

	// No sleep: Start must return only after the bind completed.
	c, err := client.Connect("tcp://127.0.0.1:60641", time.Second)
	if err != nil {
		t.Fatalf("Connect right after Start failed: %v", err)
	}
	defer c.Close()

	got, err := c.Call("ping", nil)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if got != "pong" {
		t.Errorf("got %v, want pong", got)
	}
}

func TestStopWaitsForLoop(t *testing.T) {
	svr := server.New(pingRegistry(),
		server.WithRecvTimeout(20*time.Millisecond),
		server.WithGuard(server.NewBindGuard()))
	r := New(svr, "tcp://127.0.0.1:60642")
	if err := r.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := r.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	select {
	case <-r.Done():
	default:
		t.Fatal("Done not closed after Stop")
	}
	if svr.State() != server.Stopped {
		t.Errorf("state: got %s, want stopped", svr.State())
	}
}

func TestDoubleStartRefused(t *testing.T) {
	svr := server.New(pingRegistry(),
		server.WithRecvTimeout(20*time.Millisecond),
		server.WithGuard(server.NewBindGuard()))
	r := New(svr, "tcp://127.0.0.1:60643")
	if err := r.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer r.Stop()

	if err := r.Start(); err == nil {
		t.Fatal("second Start should be refused")
	}
}

func TestStartBindFailure(t *testing.T) {
	guard := server.NewBindGuard()
	first := server.New(pingRegistry(), server.WithGuard(guard),
		server.WithRecvTimeout(20*time.Millisecond))
	r1 := New(first, "tcp://127.0.0.1:60644")
	if err := r1.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer r1.Stop()

	second := server.New(pingRegistry(), server.WithGuard(guard))
	r2 := New(second, "tcp://127.0.0.1:60644")
	if err := r2.Start(); err == nil {
		r2.Stop()
		t.Fatal("Start with a conflicting bind should fail")
	}
}

type fakeAnnouncer struct {
	announced []string
	withdrawn []string
}

func (f *fakeAnnouncer) Announce(service, addr string) error {
	f.announced = append(f.announced, service+"="+addr)
	return nil
}

func (f *fakeAnnouncer) Withdraw(service, addr string) error {
	f.withdrawn = append(f.withdrawn, service+"="+addr)
	return nil
}

func TestAnnouncerLifecycle(t *testing.T) {
	ann := &fakeAnnouncer{}
	svr := server.New(pingRegistry(),
		server.WithRecvTimeout(20*time.Millisecond),
		server.WithGuard(server.NewBindGuard()))
	r := New(svr, "tcp://127.0.0.1:60645", WithAnnouncer(ann, "pinger"))

	if err := r.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if len(ann.announced) != 1 || ann.announced[0] != "pinger=tcp://127.0.0.1:60645" {
		t.Errorf("announced: %v", ann.announced)
	}

	if err := r.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if len(ann.withdrawn) != 1 || ann.withdrawn[0] != "pinger=tcp://127.0.0.1:60645" {
		t.Errorf("withdrawn: %v", ann.withdrawn)
	}
}
