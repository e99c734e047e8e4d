// Package client is the rendezvous store's façade (C7): it turns the
// operations below into wire requests on a persistent request socket,
// performs the synchronous round trip, and runs the worker-rendezvous
// barrier. It also owns a second, dedicated listener socket used only
// for watch notifications (C6), matching the teacher's two-socket
// split between internal/base_client.go's readClient and
// mutationClient, repurposed here for request-vs-notification traffic
// instead of read-vs-write traffic.
package client

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rstutsman/rendezvous-store/internal/daemon"
	"github.com/rstutsman/rendezvous-store/internal/notifyqueue"
	"github.com/rstutsman/rendezvous-store/internal/opcode"
	"github.com/rstutsman/rendezvous-store/internal/wire"
)

// Client holds one mutex over the request socket (§5), so overlapping
// calls from multiple goroutines serialize correctly, each request/reply
// round trip running alone on the socket. The order in which
// overlapping calls are served is not defined.
type Client struct {
	opts Options

	daemon *daemon.Daemon // non-nil only when Options.IsServer

	reqMu sync.Mutex
	req   *wire.Conn
	reqC  net.Conn

	listenConn *wire.Conn
	listenC    net.Conn
	watch      watchState

	cbMu      sync.Mutex
	callbacks map[string]func(old, new []byte)
	queue     *notifyqueue.Queue

	closed    bool
	closeOnce sync.Once
}

// New dials (or, if Options.IsServer, first spawns) the daemon at
// MasterAddr:MasterPort, opens the request and listener sockets, and
// optionally blocks for the worker rendezvous barrier (§4.5) before
// returning.
func New(opts Options) (*Client, error) {
	c := &Client{
		opts:      opts,
		callbacks: make(map[string]func(old, new []byte)),
	}

	addr := fmt.Sprintf("%s:%d", opts.MasterAddr, opts.MasterPort)

	if opts.IsServer {
		d, err := daemon.Listen(addr)
		if err != nil {
			return nil, err
		}
		c.daemon = d
		go d.Run()
		addr = d.Addr().String()
	}

	reqC, err := net.Dial("tcp", addr)
	if err != nil {
		c.shutdownDaemon()
		return nil, fmt.Errorf("client: dial request socket: %w", err)
	}
	setNoDelay(reqC)
	c.reqC = reqC
	c.req = wire.NewConn(reqC)

	listenC, err := net.Dial("tcp", addr)
	if err != nil {
		reqC.Close()
		c.shutdownDaemon()
		return nil, fmt.Errorf("client: dial listener socket: %w", err)
	}
	setNoDelay(listenC)
	c.listenC = listenC
	c.listenConn = wire.NewConn(listenC)

	c.queue = notifyqueue.New(c.dispatchNotification)
	go c.listenLoop()

	if opts.WaitWorkers && opts.NumWorkers > 0 {
		if err := c.WaitForWorkers(); err != nil {
			c.Close()
			return nil, err
		}
	}

	return c, nil
}

func setNoDelay(c net.Conn) {
	if tc, ok := c.(*net.TCPConn); ok {
		tc.SetNoDelay(true)
	}
}

func (c *Client) shutdownDaemon() {
	if c.daemon != nil {
		c.daemon.Stop()
		c.daemon.Wait()
	}
}

// Close tears down both sockets and, if this client hosts the daemon,
// stops it. Close waits for the notification worker and, when this
// client hosts the daemon, for the daemon's mutator loop to return.
// Closing the listener socket ends the listener goroutine, but Close
// does not wait for that goroutine to return.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.cbMu.Lock()
		c.closed = true
		c.cbMu.Unlock()

		c.reqC.Close()
		c.listenC.Close()
		c.queue.Close()
		c.shutdownDaemon()
	})
	return nil
}

func (c *Client) checkClosed() error {
	c.cbMu.Lock()
	closed := c.closed
	c.cbMu.Unlock()
	if closed {
		return ErrClientClosed
	}
	return nil
}

// Set writes key=value unconditionally. Per §4.2's table SET has no
// reply body, so this call returns as soon as the request is flushed;
// it does not wait for the daemon to process it.
func (c *Client) Set(key string, value []byte) error {
	if err := c.checkClosed(); err != nil {
		return err
	}
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	k := []byte(keyPrefix + key)
	if err := c.req.WriteUint8(byte(opcode.Set)); err != nil {
		return err
	}
	if err := c.req.WriteBytes(k); err != nil {
		return err
	}
	if err := c.req.WriteBytes(value); err != nil {
		return err
	}
	return c.req.Flush()
}

// CompareSet implements §4.2.1 precisely: see that section for the
// four-way semantics the returned value encodes.
func (c *Client) CompareSet(key string, expected, desired []byte) ([]byte, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	k := []byte(keyPrefix + key)
	if err := c.req.WriteUint8(byte(opcode.CompareSet)); err != nil {
		return nil, err
	}
	if err := c.req.WriteBytes(k); err != nil {
		return nil, err
	}
	if err := c.req.WriteBytes(expected); err != nil {
		return nil, err
	}
	if err := c.req.WriteBytes(desired); err != nil {
		return nil, err
	}
	if err := c.req.Flush(); err != nil {
		return nil, err
	}
	return c.req.ReadBytes()
}

// rawGet issues the GET opcode without first waiting for presence.
func (c *Client) rawGet(key string) ([]byte, error) {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	k := []byte(keyPrefix + key)
	if err := c.req.WriteUint8(byte(opcode.Get)); err != nil {
		return nil, err
	}
	if err := c.req.WriteBytes(k); err != nil {
		return nil, err
	}
	if err := c.req.Flush(); err != nil {
		return nil, err
	}
	return c.req.ReadBytes()
}

// Get performs a blocking read: it waits for key to exist (§6.3) and
// then fetches its value. It respects Options.Timeout.
func (c *Client) Get(key string) ([]byte, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}
	if err := c.Wait([]string{key}, c.opts.Timeout); err != nil {
		return nil, err
	}
	return c.rawGet(key)
}

// Add implements §4.2.2.
func (c *Client) Add(key string, delta int64) (int64, error) {
	if err := c.checkClosed(); err != nil {
		return 0, err
	}
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	k := []byte(keyPrefix + key)
	if err := c.req.WriteUint8(byte(opcode.Add)); err != nil {
		return 0, err
	}
	if err := c.req.WriteBytes(k); err != nil {
		return 0, err
	}
	if err := c.req.WriteInt64(delta); err != nil {
		return 0, err
	}
	if err := c.req.Flush(); err != nil {
		return 0, err
	}
	return c.req.ReadInt64()
}

// Check reports whether every key in keys is currently present,
// without blocking and without registering as a waiter.
func (c *Client) Check(keys []string) (bool, error) {
	if err := c.checkClosed(); err != nil {
		return false, err
	}
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	if err := c.req.WriteUint8(byte(opcode.Check)); err != nil {
		return false, err
	}
	if err := c.writePrefixedKeysLocked(keys); err != nil {
		return false, err
	}
	if err := c.req.Flush(); err != nil {
		return false, err
	}
	status, err := c.req.ReadUint8()
	if err != nil {
		return false, err
	}
	return status == opcode.Ready, nil
}

func (c *Client) writePrefixedKeysLocked(keys []string) error {
	if err := c.req.WriteInt64(int64(len(keys))); err != nil {
		return err
	}
	for _, k := range keys {
		if err := c.req.WriteBytes([]byte(keyPrefix + k)); err != nil {
			return err
		}
	}
	return nil
}

// Wait blocks until every key in keys has been written at least once
// (or was already present). A zero timeout blocks indefinitely; a
// positive timeout poisons the request socket on expiry, per §5 — the
// caller must Close and reconnect afterward.
func (c *Client) Wait(keys []string, timeout time.Duration) error {
	if err := c.checkClosed(); err != nil {
		return err
	}
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	if err := c.req.WriteUint8(byte(opcode.Wait)); err != nil {
		return err
	}
	if err := c.writePrefixedKeysLocked(keys); err != nil {
		return err
	}
	if err := c.req.Flush(); err != nil {
		return err
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
		c.reqC.SetReadDeadline(deadline)
		defer c.reqC.SetReadDeadline(time.Time{})
	}

	_, err := c.req.ReadUint8()
	if err != nil {
		// internal/wire folds the net.Error into ErrConnectionLost, so
		// a deadline expiry is recognized by the clock instead.
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return ErrTimeout
		}
		return err
	}
	return nil
}

// GetNumKeys returns the total number of keys presently in the store.
func (c *Client) GetNumKeys() (int64, error) {
	if err := c.checkClosed(); err != nil {
		return 0, err
	}
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	if err := c.req.WriteUint8(byte(opcode.GetNumKeys)); err != nil {
		return 0, err
	}
	if err := c.req.Flush(); err != nil {
		return 0, err
	}
	return c.req.ReadInt64()
}

// DeleteKey removes key, reporting whether it was present.
func (c *Client) DeleteKey(key string) (bool, error) {
	if err := c.checkClosed(); err != nil {
		return false, err
	}
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	k := []byte(keyPrefix + key)
	if err := c.req.WriteUint8(byte(opcode.DeleteKey)); err != nil {
		return false, err
	}
	if err := c.req.WriteBytes(k); err != nil {
		return false, err
	}
	if err := c.req.Flush(); err != nil {
		return false, err
	}
	b, err := c.req.ReadUint8()
	if err != nil {
		return false, err
	}
	return b == 0x01, nil
}

// MultiGet issues Get for each key in turn on the already-serialized
// request socket. There is no batched wire opcode (§6.1 is fixed), so
// this is purely a client-side convenience, not a protocol feature.
func (c *Client) MultiGet(keys []string) ([][]byte, error) {
	out := make([][]byte, len(keys))
	for i, k := range keys {
		v, err := c.Get(k)
		if err != nil {
			return nil, fmt.Errorf("client: MultiGet key %q: %w", k, err)
		}
		out[i] = v
	}
	return out, nil
}

// MultiSet issues Set for each (key, value) pair in turn.
func (c *Client) MultiSet(kvs map[string][]byte) error {
	for k, v := range kvs {
		if err := c.Set(k, v); err != nil {
			return fmt.Errorf("client: MultiSet key %q: %w", k, err)
		}
	}
	return nil
}
