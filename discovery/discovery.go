// Package discovery publishes server bind addresses in etcd so clients can
// find a service without a configured address.
//
// Each serving process announces its address under a TTL lease:
//
//	Key:   /lumos/rpc/{service}/{addr}
//	Value: {addr}
//
// KeepAlive renews the lease while the process lives; if it crashes, the
// entry expires on its own, so stale addresses disappear without explicit
// cleanup.
package discovery

import (
	"context"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

const keyPrefix = "/lumos/rpc/"

// DefaultTTL is the announcement lease TTL.
const DefaultTTL = 10 * time.Second

// Directory is an etcd-backed address directory.
type Directory struct {
	client *clientv3.Client
	log    *zap.Logger
	ttl    int64
}

// Option configures a Directory.
type Option func(*Directory)

// WithLogger sets the directory's logger. Default is a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(d *Directory) { d.log = log }
}

// WithTTL sets the announcement lease TTL.
func WithTTL(ttl time.Duration) Option {
	return func(d *Directory) { d.ttl = int64(ttl.Seconds()) }
}

// New connects a directory to the given etcd endpoints.
func New(endpoints []string, opts ...Option) (*Directory, error) {
	d := &Directory{
		log: zap.NewNop(),
		ttl: int64(DefaultTTL.Seconds()),
	}
	for _, opt := range opts {
		opt(d)
	}
	client, err := clientv3.New(clientv3.Config{
		Endpoints: endpoints,
		Logger:    d.log.Named("etcd"),
	})
	if err != nil {
		return nil, err
	}
	d.client = client
	return d, nil
}

func key(service, addr string) string {
	return keyPrefix + service + "/" + addr
}

// Announce publishes addr for service under a TTL lease and starts renewing
// it in the background.
func (d *Directory) Announce(service, addr string) error {
	ctx := context.TODO()

	lease, err := d.client.Grant(ctx, d.ttl)
	if err != nil {
		return err
	}
	if _, err := d.client.Put(ctx, key(service, addr), addr, clientv3.WithLease(lease.ID)); err != nil {
		return err
	}
	ch, err := d.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return err
	}
	// Drain KeepAlive responses so the channel does not fill up.
	go func() {
		for range ch {
		}
	}()

	d.log.Info("announced", zap.String("service", service), zap.String("addr", addr))
	return nil
}

// Withdraw removes the announcement for addr. Called during shutdown before
// the socket closes.
func (d *Directory) Withdraw(service, addr string) error {
	_, err := d.client.Delete(context.TODO(), key(service, addr))
	if err != nil {
		return err
	}
	d.log.Info("withdrawn", zap.String("service", service), zap.String("addr", addr))
	return nil
}

// Resolve returns the announced address of a service. A service announced
// from more than one process resolves to the most recently announced
// address.
func (d *Directory) Resolve(service string) (string, error) {
	addrs, err := d.lookup(service)
	if err != nil {
		return "", err
	}
	if len(addrs) == 0 {
		return "", fmt.Errorf("service %q not announced", service)
	}
	return addrs[len(addrs)-1], nil
}

// Watch emits the full address list of a service whenever it changes.
func (d *Directory) Watch(service string) <-chan []string {
	ch := make(chan []string, 1)
	go func() {
		watchChan := d.client.Watch(context.TODO(), keyPrefix+service+"/", clientv3.WithPrefix())
		for range watchChan {
			addrs, err := d.lookup(service)
			if err != nil {
				continue
			}
			ch <- addrs
		}
	}()
	return ch
}

// lookup fetches all announced addresses for a service, ordered by
// announcement revision.
func (d *Directory) lookup(service string) ([]string, error) {
	resp, err := d.client.Get(context.TODO(), keyPrefix+service+"/",
		clientv3.WithPrefix(),
		clientv3.WithSort(clientv3.SortByModRevision, clientv3.SortAscend))
	if err != nil {
		return nil, err
	}
	addrs := make([]string, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		addrs = append(addrs, string(kv.Value))
	}
	return addrs, nil
}

// Close releases the etcd client.
func (d *Directory) Close() error {
	return d.client.Close()
}
