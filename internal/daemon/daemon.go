// Package daemon is the single-threaded rendezvous server: one mutator
// goroutine owns the primary store, the waiter registry, and the
// watcher registry, exactly as spec'd in component C3. Every accepted
// socket gets its own reader goroutine whose only job is to decode one
// request at a time off the wire and hand it to the mutator — the
// mutator never blocks on a peer's read, only (briefly) on writes back
// to that same peer or to waiters/watchers it wakes.
package daemon

import (
	"fmt"
	"net"
	"sync"

	"github.com/rstutsman/rendezvous-store/internal/opcode"
	"github.com/rstutsman/rendezvous-store/internal/stopsignal"
	"github.com/rstutsman/rendezvous-store/internal/wire"
)

// clientConn is the daemon-side identity of an accepted socket. Its
// pointer value is the "socket identifier" the spec's registries key
// on. waitingOn and watching are only ever touched from the mutator
// goroutine; wc is read by the socket's reader goroutine and written
// by the mutator.
type clientConn struct {
	conn net.Conn
	wc   *wire.Conn

	// keys this socket is presently blocked on inside a WAIT, kept so
	// disconnect cleanup doesn't have to scan the whole waiter map.
	waitingOn map[string]struct{}
	// keys this socket has registered WATCH_KEY interest in.
	watching map[string]struct{}
}

func newClientConn(c net.Conn) *clientConn {
	return &clientConn{
		conn:      c,
		wc:        wire.NewConn(c),
		waitingOn: make(map[string]struct{}),
		watching:  make(map[string]struct{}),
	}
}

// command is a fully-decoded request handed from a reader goroutine to
// the mutator. Exactly one opcode's worth of fields is populated,
// matching which op is set.
type command struct {
	from *clientConn
	op   opcode.Op

	key      []byte
	value    []byte
	expected []byte
	desired  []byte
	delta    int64
	keys     [][]byte

	// disconnect is set instead of op when the reader goroutine hit an
	// I/O error or EOF reading this socket's next request.
	disconnect bool
}

// Daemon is the rendezvous server. It owns the primary key/value map
// and both registries; nothing outside the mutator goroutine touches
// them. clients is the one exception, guarded by clientsMu instead.
type Daemon struct {
	listener net.Listener
	stop     *stopsignal.Signal
	cmdCh    chan command
	doneCh   chan struct{}

	store map[string][]byte

	// waiter registry (§3, invariant W1).
	waitersByKey  map[string][]*clientConn
	waitCountBySk map[*clientConn]int

	// watcher registry.
	watchersByKey map[string]map[*clientConn]struct{}

	// clientsMu guards clients, the inventory of every accepted socket
	// not yet closed. Unlike the rest of the daemon's state, this one
	// map can't be mutator-exclusive: a socket has to be tracked from
	// the moment acceptLoop takes it, before the mutator goroutine has
	// ever seen a request from it, so that a socket that disconnects,
	// errors, or sends a malformed opcode before completing one full
	// request is still closed on disconnect and on shutdown.
	clientsMu sync.Mutex
	clients   map[*clientConn]struct{}
}

// Listen binds addr and returns a Daemon ready to Run.
func Listen(addr string) (*Daemon, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("daemon: listen %s: %w", addr, err)
	}
	return &Daemon{
		listener:      l,
		stop:          stopsignal.New(),
		cmdCh:         make(chan command),
		doneCh:        make(chan struct{}),
		store:         make(map[string][]byte),
		waitersByKey:  make(map[string][]*clientConn),
		waitCountBySk: make(map[*clientConn]int),
		watchersByKey: make(map[string]map[*clientConn]struct{}),
		clients:       make(map[*clientConn]struct{}),
	}, nil
}

func (d *Daemon) Addr() net.Addr { return d.listener.Addr() }

// Run blocks, accepting connections and dispatching requests, until
// Stop is called. It returns once the mutator loop has drained and
// every accepted socket has been closed.
func (d *Daemon) Run() {
	go d.acceptLoop()
	d.mutatorLoop()
	close(d.doneCh)
}

// Stop causes Run to return. Safe to call once; in-flight WAIT clients
// observe CONNECTION_LOST per §5.
func (d *Daemon) Stop() {
	d.stop.Stop()
	d.listener.Close()
}

// Wait blocks until Run has fully returned after Stop.
func (d *Daemon) Wait() { <-d.doneCh }

func (d *Daemon) acceptLoop() {
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			if d.stop.Stopped() {
				return
			}
			fmt.Printf("daemon: accept error: %v\n", err)
			continue
		}
		if tc, ok := conn.(*net.TCPConn); ok {
			tc.SetNoDelay(true)
		}
		cc := newClientConn(conn)

		// Register before spawning readLoop so the socket is tracked
		// even if it disconnects, errors, or sends an unrecognized
		// opcode before completing a single request. Checked against
		// stop under the same lock shutdown() uses, so a connection
		// accepted in the narrow window around Stop() is either
		// registered and then closed by shutdown(), or never
		// registered and closed here instead — never both missed.
		d.clientsMu.Lock()
		if d.stop.Stopped() {
			d.clientsMu.Unlock()
			conn.Close()
			continue
		}
		d.clients[cc] = struct{}{}
		d.clientsMu.Unlock()

		go d.readLoop(cc)
	}
}

// readLoop owns reading one socket's requests. It never touches daemon
// state directly — every decoded request, and every disconnect, is
// handed to the mutator loop over cmdCh.
func (d *Daemon) readLoop(cc *clientConn) {
	for {
		cmd, err := decodeRequest(cc)
		if err != nil {
			select {
			case d.cmdCh <- command{from: cc, disconnect: true}:
			case <-d.stop.C():
			}
			return
		}
		select {
		case d.cmdCh <- cmd:
		case <-d.stop.C():
			return
		}
	}
}

func decodeRequest(cc *clientConn) (command, error) {
	opByte, err := cc.wc.ReadUint8()
	if err != nil {
		return command{}, err
	}
	op := opcode.Op(opByte)
	cmd := command{from: cc, op: op}

	switch op {
	case opcode.Set:
		key, err := cc.wc.ReadBytes()
		if err != nil {
			return command{}, err
		}
		val, err := cc.wc.ReadBytes()
		if err != nil {
			return command{}, err
		}
		cmd.key, cmd.value = key, val

	case opcode.CompareSet:
		key, err := cc.wc.ReadBytes()
		if err != nil {
			return command{}, err
		}
		expected, err := cc.wc.ReadBytes()
		if err != nil {
			return command{}, err
		}
		desired, err := cc.wc.ReadBytes()
		if err != nil {
			return command{}, err
		}
		cmd.key, cmd.expected, cmd.desired = key, expected, desired

	case opcode.Get, opcode.DeleteKey, opcode.WatchKey:
		key, err := cc.wc.ReadBytes()
		if err != nil {
			return command{}, err
		}
		cmd.key = key

	case opcode.Add:
		key, err := cc.wc.ReadBytes()
		if err != nil {
			return command{}, err
		}
		delta, err := cc.wc.ReadInt64()
		if err != nil {
			return command{}, err
		}
		cmd.key, cmd.delta = key, delta

	case opcode.Check, opcode.Wait:
		keys, err := cc.wc.ReadStringVector()
		if err != nil {
			return command{}, err
		}
		cmd.keys = keys

	case opcode.GetNumKeys:
		// no payload

	default:
		return command{}, fmt.Errorf("daemon: unknown opcode %d", opByte)
	}

	return cmd, nil
}

// mutatorLoop is the single thread that owns all daemon state. No
// locks guard store/waitersByKey/waitCountBySk/watchersByKey: this
// goroutine is their only reader and writer. clients is the one map
// acceptLoop also touches, so it alone is guarded by clientsMu.
func (d *Daemon) mutatorLoop() {
	for {
		select {
		case cmd := <-d.cmdCh:
			if cmd.disconnect {
				d.disconnectClient(cmd.from)
				continue
			}
			d.dispatch(cmd)
		case <-d.stop.C():
			d.shutdown()
			return
		}
	}
}

func (d *Daemon) dispatch(cmd command) {
	switch cmd.op {
	case opcode.Set:
		d.handleSet(cmd)
	case opcode.CompareSet:
		d.handleCompareSet(cmd)
	case opcode.Get:
		d.handleGet(cmd)
	case opcode.Add:
		d.handleAdd(cmd)
	case opcode.Check:
		d.handleCheck(cmd)
	case opcode.Wait:
		d.handleWait(cmd)
	case opcode.GetNumKeys:
		d.handleGetNumKeys(cmd)
	case opcode.DeleteKey:
		d.handleDeleteKey(cmd)
	case opcode.WatchKey:
		d.handleWatchKey(cmd)
	default:
		fmt.Printf("daemon: dispatch: unhandled opcode %d\n", cmd.op)
		d.disconnectClient(cmd.from)
	}
}

// disconnectClient implements the cleanup of §3: remove the socket from
// every waiter list (decrementing counts), remove it from every watcher
// list, then close it. Both registries are updated together so
// invariant W1 never observes a half-removed socket. If cc is no
// longer in clients, a concurrent shutdown() already closed it and
// reset the registries, so there's nothing left to do here.
func (d *Daemon) disconnectClient(cc *clientConn) {
	d.clientsMu.Lock()
	_, tracked := d.clients[cc]
	delete(d.clients, cc)
	d.clientsMu.Unlock()

	if !tracked {
		return
	}

	for key := range cc.waitingOn {
		list := d.waitersByKey[key]
		for i, s := range list {
			if s == cc {
				list = append(list[:i], list[i+1:]...)
				break
			}
		}
		if len(list) == 0 {
			delete(d.waitersByKey, key)
		} else {
			d.waitersByKey[key] = list
		}
	}
	delete(d.waitCountBySk, cc)

	for key := range cc.watching {
		set := d.watchersByKey[key]
		delete(set, cc)
		if len(set) == 0 {
			delete(d.watchersByKey, key)
		}
	}

	cc.conn.Close()
}

// shutdown closes every socket acceptLoop has ever registered,
// including ones still blocked reading their first request — that's
// why clients is populated at accept time rather than on first
// successful dispatch. Holding clientsMu for the whole sweep also
// keeps this mutually exclusive with acceptLoop's own stop check, so
// no connection accepted concurrently with Stop() is missed by both.
func (d *Daemon) shutdown() {
	d.clientsMu.Lock()
	for cc := range d.clients {
		cc.conn.Close()
	}
	d.clients = make(map[*clientConn]struct{})
	d.clientsMu.Unlock()

	d.waitersByKey = make(map[string][]*clientConn)
	d.waitCountBySk = make(map[*clientConn]int)
	d.watchersByKey = make(map[string]map[*clientConn]struct{})
}
