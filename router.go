package client

// Store is the common surface a caller needs regardless of whether
// it's talking to one daemon or a sharded fleet of them (§6.3).
type Store interface {
	Set(key string, value []byte) error
	Get(key string) ([]byte, error)
	Add(key string, delta int64) (int64, error)
	CompareSet(key string, expected, desired []byte) ([]byte, error)
	DeleteKey(key string) (bool, error)
	WatchKey(key string, cb func(old, new []byte)) error
	Close() error
}

var (
	_ Store = (*Client)(nil)
	_ Store = (*ShardedClient)(nil)

	_ Router = (*DirectRouter)(nil)
	_ Router = (*ShardedRouter)(nil)
)

// Router picks which Store owns a given key, the way the teacher's own
// Router interface (router/router.go) picks which backend
// MemcacheClient owns it.
type Router interface {
	Route(key string) Store
	Close() error
}

// DirectRouter always routes to the same single Store; it exists so
// callers can depend on Router uniformly even when sharding isn't in
// play.
type DirectRouter struct {
	store Store
}

func NewDirectRouter(s Store) *DirectRouter {
	return &DirectRouter{store: s}
}

func (r *DirectRouter) Route(key string) Store { return r.store }

func (r *DirectRouter) Close() error { return r.store.Close() }
