package client

import (
	"fmt"
	"sync"

	"github.com/rstutsman/rendezvous-store/internal/notifyqueue"
	"github.com/rstutsman/rendezvous-store/internal/opcode"
	"github.com/rstutsman/rendezvous-store/internal/wire"
)

type ackWaiter struct {
	ch chan struct{}
}

// watchState is the bookkeeping the listener goroutine and WatchKey
// share over the listener connection: a FIFO of pending acks (acks
// arrive in the order their WATCH_KEY requests were sent, since a
// single TCP connection preserves order and the daemon processes one
// connection's requests in arrival order) and the write-side mutex
// that keeps concurrent WatchKey calls from interleaving their
// requests.
type watchState struct {
	writeMu sync.Mutex
	ackMu   sync.Mutex
	acks    []*ackWaiter
}

// WatchKey registers cb to be invoked with (old, new) on every future
// mutation of key, including deletion (new is empty). WatchKey blocks
// until the daemon has acknowledged the registration, so a mutation
// immediately after WatchKey returns is guaranteed to be observed.
func (c *Client) WatchKey(key string, cb func(old, new []byte)) error {
	if err := c.checkClosed(); err != nil {
		return err
	}

	fullKey := keyPrefix + key
	c.cbMu.Lock()
	c.callbacks[fullKey] = cb
	c.cbMu.Unlock()

	w := &ackWaiter{ch: make(chan struct{})}

	c.watch.writeMu.Lock()
	c.watch.ackMu.Lock()
	c.watch.acks = append(c.watch.acks, w)
	c.watch.ackMu.Unlock()

	err := writeWatchRequest(c.listenConn, fullKey)
	c.watch.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("client: WatchKey %q: %w", key, err)
	}

	<-w.ch
	return nil
}

func writeWatchRequest(wc *wire.Conn, fullKey string) error {
	if err := wc.WriteUint8(byte(opcode.WatchKey)); err != nil {
		return err
	}
	if err := wc.WriteBytes([]byte(fullKey)); err != nil {
		return err
	}
	return wc.Flush()
}

// listenLoop is the dedicated background goroutine of C6: it blocks
// reading the listener socket and either wakes a pending WatchKey ack
// or enqueues a decoded notification frame for serial delivery.
func (c *Client) listenLoop() {
	for {
		tag, err := c.listenConn.ReadUint8()
		if err != nil {
			return
		}
		switch tag {
		case opcode.FrameAck:
			c.popAckWaiter()
		case opcode.FrameNotif:
			f, err := readNotifFrame(c.listenConn)
			if err != nil {
				return
			}
			c.queue.Push(f)
		default:
			fmt.Printf("client: unknown listener frame tag %d\n", tag)
			return
		}
	}
}

func (c *Client) popAckWaiter() {
	c.watch.ackMu.Lock()
	if len(c.watch.acks) == 0 {
		c.watch.ackMu.Unlock()
		return
	}
	w := c.watch.acks[0]
	c.watch.acks = c.watch.acks[1:]
	c.watch.ackMu.Unlock()
	close(w.ch)
}

func readNotifFrame(wc *wire.Conn) (notifyqueue.Frame, error) {
	key, err := wc.ReadBytes()
	if err != nil {
		return notifyqueue.Frame{}, err
	}
	old, err := wc.ReadBytes()
	if err != nil {
		return notifyqueue.Frame{}, err
	}
	newV, err := wc.ReadBytes()
	if err != nil {
		return notifyqueue.Frame{}, err
	}
	tag, err := wc.ReadUint8()
	if err != nil {
		return notifyqueue.Frame{}, err
	}
	return notifyqueue.Frame{Key: string(key), OldValue: old, NewValue: newV, Tag: tag}, nil
}

// dispatchNotification runs on the notifyqueue worker goroutine, never
// on listenLoop itself, so a slow callback only ever stalls further
// callback delivery — never the socket read that keeps the wire in
// sync (§4.4).
func (c *Client) dispatchNotification(f notifyqueue.Frame) {
	c.cbMu.Lock()
	cb := c.callbacks[f.Key]
	c.cbMu.Unlock()
	if cb == nil {
		return
	}
	cb(f.OldValue, f.NewValue)
}
