package daemon

import (
	"fmt"
	"strconv"

	"github.com/rstutsman/rendezvous-store/internal/opcode"
)

func (d *Daemon) reply(cc *clientConn, write func() error) {
	if err := write(); err != nil {
		fmt.Printf("daemon: reply write: %v\n", err)
		return
	}
	if err := cc.wc.Flush(); err != nil {
		fmt.Printf("daemon: reply flush: %v\n", err)
	}
}

// handleSet implements SET: unconditional overwrite, watcher
// notification, waiter wake-up. No reply body (§4.2's table).
func (d *Daemon) handleSet(cmd command) {
	key := string(cmd.key)
	old, existed := d.store[key]
	d.store[key] = cmd.value

	if existed {
		d.notifyWatchers(key, old, cmd.value, byte(opcode.NotifyUpdated))
	} else {
		d.notifyWatchers(key, nil, cmd.value, byte(opcode.NotifyCreated))
	}
	d.wakeWaiters(key)
}

// handleCompareSet implements §4.2.1's CAS table.
func (d *Daemon) handleCompareSet(cmd command) {
	key := string(cmd.key)
	current, exists := d.store[key]

	var reply []byte
	mutated := false
	wasCreate := false

	switch {
	case !exists && len(cmd.expected) == 0:
		d.store[key] = cmd.desired
		reply = cmd.desired
		mutated = true
		wasCreate = true
	case !exists:
		reply = cmd.expected
	case bytesEqual(current, cmd.expected):
		d.store[key] = cmd.desired
		reply = cmd.desired
		mutated = true
	default:
		reply = current
	}

	d.reply(cmd.from, func() error { return cmd.from.wc.WriteBytes(reply) })

	if mutated {
		if wasCreate {
			d.notifyWatchers(key, nil, cmd.desired, byte(opcode.NotifyCreated))
		} else {
			d.notifyWatchers(key, current, cmd.desired, byte(opcode.NotifyUpdated))
		}
		d.wakeWaiters(key)
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// handleGet implements GET. The precondition (key exists) is the
// caller's responsibility via WAIT; if it's violated anyway we reply
// with an empty value rather than desyncing the connection.
func (d *Daemon) handleGet(cmd command) {
	key := string(cmd.key)
	val, ok := d.store[key]
	if !ok {
		fmt.Printf("daemon: GET on missing key %q (caller skipped WAIT)\n", key)
		val = []byte{}
	}
	d.reply(cmd.from, func() error { return cmd.from.wc.WriteBytes(val) })
}

// handleAdd implements §4.2.2: parse existing value as base-10 int64
// (default/fallback 0), add delta, store the base-10 ASCII result.
func (d *Daemon) handleAdd(cmd command) {
	key := string(cmd.key)
	base := int64(0)
	if raw, ok := d.store[key]; ok {
		n, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			fmt.Printf("daemon: ADD on non-numeric value for key %q, treating as 0\n", key)
		} else {
			base = n
		}
	}
	newVal := base + cmd.delta
	newRaw := []byte(strconv.FormatInt(newVal, 10))

	old, existed := d.store[key]
	d.store[key] = newRaw

	d.reply(cmd.from, func() error { return cmd.from.wc.WriteInt64(newVal) })

	if existed {
		d.notifyWatchers(key, old, newRaw, byte(opcode.NotifyAppended))
	} else {
		d.notifyWatchers(key, nil, newRaw, byte(opcode.NotifyCreated))
	}
	d.wakeWaiters(key)
}

// handleCheck implements CHECK: a single byte, no registration, no
// side effects.
func (d *Daemon) handleCheck(cmd command) {
	ready := opcode.Ready
	for _, k := range cmd.keys {
		if _, ok := d.store[string(k)]; !ok {
			ready = opcode.NotReady
			break
		}
	}
	d.reply(cmd.from, func() error { return cmd.from.wc.WriteUint8(ready) })
}

// handleWait implements WAIT: reply immediately if already satisfied,
// otherwise register and let wakeWaiters reply later.
func (d *Daemon) handleWait(cmd command) {
	if d.registerWait(cmd.from, cmd.keys) {
		d.reply(cmd.from, func() error { return cmd.from.wc.WriteUint8(opcode.StopWaiting) })
	}
}

func (d *Daemon) handleGetNumKeys(cmd command) {
	d.reply(cmd.from, func() error { return cmd.from.wc.WriteInt64(int64(len(d.store))) })
}

// handleDeleteKey implements DELETE_KEY. Per the spec's resolved Open
// Question, deletion does fire a watcher notification (new value
// empty) so watch clients can observe it; it does not wake waiters,
// since waiters want presence, not change.
func (d *Daemon) handleDeleteKey(cmd command) {
	key := string(cmd.key)
	old, existed := d.store[key]
	if existed {
		delete(d.store, key)
	}

	reply := byte(0x00)
	if existed {
		reply = 0x01
	}
	d.reply(cmd.from, func() error { return cmd.from.wc.WriteUint8(reply) })

	if existed {
		d.notifyWatchers(key, old, []byte{}, byte(opcode.NotifyDeleted))
	}
}

func (d *Daemon) handleWatchKey(cmd command) {
	key := string(cmd.key)
	d.addWatcher(cmd.from, key)
	d.reply(cmd.from, func() error { return cmd.from.wc.WriteUint8(opcode.FrameAck) })
}
