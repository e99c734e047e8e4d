package client

import (
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rstutsman/rendezvous-store/internal/daemon"
)

func startDaemon(t *testing.T) (host string, port int, stop func()) {
	t.Helper()
	d, err := daemon.Listen("127.0.0.1:0")
	require.NoError(t, err)
	go d.Run()

	addr := d.Addr().String()
	h, p, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	var portNum int
	_, err = fmt.Sscanf(p, "%d", &portNum)
	require.NoError(t, err)

	return h, portNum, func() {
		d.Stop()
		d.Wait()
	}
}

func newTestClient(t *testing.T, host string, port int) *Client {
	t.Helper()
	c, err := New(Options{MasterAddr: host, MasterPort: port, Timeout: 2 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestSetGetDurability(t *testing.T) {
	host, port, stop := startDaemon(t)
	defer stop()

	c1 := newTestClient(t, host, port)
	c2 := newTestClient(t, host, port)

	require.NoError(t, c1.Set("k", []byte("v1")))
	got, err := c2.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)
}

func TestAddConcurrentCounters(t *testing.T) {
	host, port, stop := startDaemon(t)
	defer stop()

	const workers = 3
	results := make([]int64, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := newTestClient(t, host, port)
			n, err := c.Add("c", 1)
			require.NoError(t, err)
			results[i] = n
		}(i)
	}
	wg.Wait()

	seen := map[int64]bool{}
	for _, r := range results {
		seen[r] = true
	}
	assert.Equal(t, map[int64]bool{1: true, 2: true, 3: true}, seen)

	final := newTestClient(t, host, port)
	v, err := final.Get("c")
	require.NoError(t, err)
	assert.Equal(t, []byte("3"), v)
}

func TestCompareSetLoserSeesWinnersValue(t *testing.T) {
	host, port, stop := startDaemon(t)
	defer stop()

	a := newTestClient(t, host, port)
	b := newTestClient(t, host, port)

	v1, err := a.CompareSet("x", []byte{}, []byte("v1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), v1)

	v2, err := b.CompareSet("x", []byte{}, []byte("v2"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), v2)

	final, err := a.Get("x")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), final)
}

func TestWatchKeyObservesCreateUpdateDelete(t *testing.T) {
	host, port, stop := startDaemon(t)
	defer stop()

	watcher := newTestClient(t, host, port)
	writer := newTestClient(t, host, port)

	type event struct{ old, new string }
	eventsCh := make(chan event, 8)

	require.NoError(t, watcher.WatchKey("k", func(old, new []byte) {
		eventsCh <- event{string(old), string(new)}
	}))

	require.NoError(t, writer.Set("k", []byte("a")))
	require.NoError(t, writer.Set("k", []byte("b")))
	_, err := writer.DeleteKey("k")
	require.NoError(t, err)

	want := []event{{"", "a"}, {"a", "b"}, {"b", ""}}
	for i, w := range want {
		select {
		case got := <-eventsCh:
			assert.Equal(t, w, got, "event %d", i)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}

func TestWaitTimeout(t *testing.T) {
	host, port, stop := startDaemon(t)
	defer stop()

	c := newTestClient(t, host, port)
	start := time.Now()
	err := c.Wait([]string{"absent"}, 50*time.Millisecond)
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, 500*time.Millisecond)
}

func TestDeleteKeyThenCheck(t *testing.T) {
	host, port, stop := startDaemon(t)
	defer stop()

	c := newTestClient(t, host, port)
	require.NoError(t, c.Set("k", []byte("v")))

	deleted, err := c.DeleteKey("k")
	require.NoError(t, err)
	assert.True(t, deleted)

	deletedAgain, err := c.DeleteKey("k")
	require.NoError(t, err)
	assert.False(t, deletedAgain)

	present, err := c.Check([]string{"k"})
	require.NoError(t, err)
	assert.False(t, present)
}

func TestGetNumKeys(t *testing.T) {
	host, port, stop := startDaemon(t)
	defer stop()

	c := newTestClient(t, host, port)
	require.NoError(t, c.Set("a", []byte("1")))
	require.NoError(t, c.Set("b", []byte("2")))

	n, err := c.GetNumKeys()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestMultiGetMultiSet(t *testing.T) {
	host, port, stop := startDaemon(t)
	defer stop()

	c := newTestClient(t, host, port)
	require.NoError(t, c.MultiSet(map[string][]byte{
		"a": []byte("1"),
		"b": []byte("2"),
	}))

	got, err := c.MultiGet([]string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("1"), []byte("2")}, got)
}

func TestRendezvousKeyCarriesKeyPrefix(t *testing.T) {
	assert.True(t, strings.HasPrefix(keyPrefix+rendezvousKey, keyPrefix))
}
