package client

import (
	"fmt"
	"hash/fnv"
	"time"

	"github.com/dgryski/go-jump"
)

// ShardedClient fans a key space out across several independent
// rendezvous daemons using jump consistent hashing, the same routing
// strategy the teacher's own ShardedRouter uses to spread memcached
// keys across backend clients. The single-daemon Client remains the
// only path the rendezvous barrier (§4.5) exercises; ShardedClient is
// an opt-in extension for jobs large enough that one daemon's
// single-threaded mutator loop becomes the bottleneck (§5 names this
// explicitly as a risk for a slow or malicious peer, and it applies
// equally to a merely high-volume one).
type ShardedClient struct {
	clients []*Client
}

// NewSharded dials one Client per target in order; target i is never
// remapped to another index, since jump.Hash's stability guarantee
// depends on shard count only growing at the end of the slice.
func NewSharded(targets []Options) (*ShardedClient, error) {
	clients := make([]*Client, 0, len(targets))
	for i, opts := range targets {
		c, err := New(opts)
		if err != nil {
			for _, prior := range clients {
				prior.Close()
			}
			return nil, fmt.Errorf("client: NewSharded: target %d: %w", i, err)
		}
		clients = append(clients, c)
	}
	return &ShardedClient{clients: clients}, nil
}

func stringToUint64(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}

// route picks the daemon owning key.
func (s *ShardedClient) route(key string) *Client {
	i := jump.Hash(stringToUint64(key), len(s.clients))
	return s.clients[i]
}

func (s *ShardedClient) Set(key string, value []byte) error {
	return s.route(key).Set(key, value)
}

func (s *ShardedClient) Get(key string) ([]byte, error) {
	return s.route(key).Get(key)
}

func (s *ShardedClient) Add(key string, delta int64) (int64, error) {
	return s.route(key).Add(key, delta)
}

func (s *ShardedClient) CompareSet(key string, expected, desired []byte) ([]byte, error) {
	return s.route(key).CompareSet(key, expected, desired)
}

func (s *ShardedClient) DeleteKey(key string) (bool, error) {
	return s.route(key).DeleteKey(key)
}

func (s *ShardedClient) WatchKey(key string, cb func(old, new []byte)) error {
	return s.route(key).WatchKey(key, cb)
}

// Wait fans a mixed key set out to every shard that owns at least one
// of them and blocks until all have replied, since a single WAIT
// request can't span daemons on the wire.
func (s *ShardedClient) Wait(keys []string, timeout time.Duration) error {
	byShard := make(map[*Client][]string)
	for _, k := range keys {
		c := s.route(k)
		byShard[c] = append(byShard[c], k)
	}
	errCh := make(chan error, len(byShard))
	for c, ks := range byShard {
		go func(c *Client, ks []string) {
			errCh <- c.Wait(ks, timeout)
		}(c, ks)
	}
	var firstErr error
	for range byShard {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *ShardedClient) Close() error {
	var firstErr error
	for _, c := range s.clients {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ShardedRouter adapts a ShardedClient to the Router interface, for
// callers that want to depend on Router uniformly whether or not
// sharding is in play (compare the teacher's own ShardedRouter, which
// plays the identical role over MemcacheClient instead of Store).
type ShardedRouter struct {
	sc *ShardedClient
}

func NewShardedRouter(sc *ShardedClient) *ShardedRouter {
	return &ShardedRouter{sc: sc}
}

func (r *ShardedRouter) Route(key string) Store { return r.sc.route(key) }

func (r *ShardedRouter) Close() error { return r.sc.Close() }
