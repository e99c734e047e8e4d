package client

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitForWorkersRendezvous(t *testing.T) {
	host, port, stop := startDaemon(t)
	defer stop()

	const n = 4
	var wg sync.WaitGroup
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := New(Options{
				MasterAddr:  host,
				MasterPort:  port,
				NumWorkers:  n,
				WaitWorkers: true,
				Timeout:     5 * time.Second,
			})
			if err != nil {
				errs[i] = err
				return
			}
			defer c.Close()
		}(i)
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("rendezvous did not complete for all workers")
	}

	for i, err := range errs {
		require.NoError(t, err, "worker %d", i)
	}

	final := newTestClient(t, host, port)
	v, err := final.Get("init/")
	require.NoError(t, err)
	assert.Equal(t, []byte("4"), v)
}
