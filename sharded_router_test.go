package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShardedClientRoutesConsistently(t *testing.T) {
	h1, p1, stop1 := startDaemon(t)
	defer stop1()
	h2, p2, stop2 := startDaemon(t)
	defer stop2()

	sc, err := NewSharded([]Options{
		{MasterAddr: h1, MasterPort: p1, Timeout: 2 * time.Second},
		{MasterAddr: h2, MasterPort: p2, Timeout: 2 * time.Second},
	})
	require.NoError(t, err)
	defer sc.Close()

	require.NoError(t, sc.Set("apple", []byte("red")))
	require.NoError(t, sc.Set("banana", []byte("yellow")))

	got, err := sc.Get("apple")
	require.NoError(t, err)
	assert.Equal(t, []byte("red"), got)

	got, err = sc.Get("banana")
	require.NoError(t, err)
	assert.Equal(t, []byte("yellow"), got)

	first := sc.route("apple")
	second := sc.route("apple")
	assert.Same(t, first, second, "routing the same key twice must pick the same shard")
}

func TestDirectRouterRoutesToItsStore(t *testing.T) {
	host, port, stop := startDaemon(t)
	defer stop()

	c := newTestClient(t, host, port)
	r := NewDirectRouter(c)
	assert.Same(t, c, r.Route("anything"))
}
