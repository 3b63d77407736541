package discovery

import (
	"context"
	"testing"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// requireEtcd skips the test when no local etcd is reachable.
func requireEtcd(t *testing.T) {
	t.Helper()
	probe, err := clientv3.New(clientv3.Config{
		Endpoints:   []string{"localhost:2379"},
		DialTimeout: time.Second,
	})
	if err != nil {
		t.Skipf("etcd not available: %v", err)
	}
	defer probe.Close()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := probe.Status(ctx, "localhost:2379"); err != nil {
		t.Skipf("etcd not available: %v", err)
	}
}

func TestAnnounceResolveWithdraw(t *testing.T) {
	requireEtcd(t)

	dir, err := New([]string{"localhost:2379"})
	if err != nil {
		t.Fatal(err)
	}
	defer dir.Close()

	if err := dir.Announce("imageserver", "tcp://127.0.0.1:61616"); err != nil {
		t.Fatal(err)
	}

	addr, err := dir.Resolve("imageserver")
	if err != nil {
		t.Fatal(err)
	}
	if addr != "tcp://127.0.0.1:61616" {
		t.Fatalf("resolved %q", addr)
	}

	if err := dir.Withdraw("imageserver", "tcp://127.0.0.1:61616"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)

	if _, err := dir.Resolve("imageserver"); err == nil {
		t.Fatal("expected resolve to fail after withdraw")
	}
}

func TestResolvePrefersLatest(t *testing.T) {
	requireEtcd(t)

	dir, err := New([]string{"localhost:2379"})
	if err != nil {
		t.Fatal(err)
	}
	defer dir.Close()

	if err := dir.Announce("multi", "tcp://127.0.0.1:7001"); err != nil {
		t.Fatal(err)
	}
	if err := dir.Announce("multi", "tcp://127.0.0.1:7002"); err != nil {
		t.Fatal(err)
	}
	defer dir.Withdraw("multi", "tcp://127.0.0.1:7001")
	defer dir.Withdraw("multi", "tcp://127.0.0.1:7002")

	addr, err := dir.Resolve("multi")
	if err != nil {
		t.Fatal(err)
	}
	if addr != "tcp://127.0.0.1:7002" {
		t.Fatalf("resolved %q, want the most recent announcement", addr)
	}
}
