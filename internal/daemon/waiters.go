package daemon

import (
	"fmt"

	"github.com/rstutsman/rendezvous-store/internal/opcode"
)

// registerWait implements the WAIT handler's registration half (§4.3):
// keys already present count as satisfied without registering; if
// everything is already satisfied the caller replies immediately,
// otherwise the socket is registered against each still-missing key.
func (d *Daemon) registerWait(cc *clientConn, keys [][]byte) (satisfied bool) {
	missing := make([]string, 0, len(keys))
	for _, k := range keys {
		key := string(k)
		if _, ok := d.store[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) == 0 {
		return true
	}
	for _, key := range missing {
		d.waitersByKey[key] = append(d.waitersByKey[key], cc)
		cc.waitingOn[key] = struct{}{}
	}
	d.waitCountBySk[cc] = len(missing)
	return false
}

// wakeWaiters implements §4.3's wake-up on mutation of key. Every
// socket waiting on key is decremented; a socket whose count reaches
// zero is sent STOP_WAITING and dropped from the per-socket map. key's
// entry is removed from the per-key map unconditionally afterward —
// each wait is consumed regardless of whether it was this key that
// pushed a given socket's count to zero.
func (d *Daemon) wakeWaiters(key string) {
	list := d.waitersByKey[key]
	if len(list) == 0 {
		return
	}
	delete(d.waitersByKey, key)

	for _, cc := range list {
		delete(cc.waitingOn, key)
		n, ok := d.waitCountBySk[cc]
		if !ok {
			continue
		}
		n--
		if n <= 0 {
			delete(d.waitCountBySk, cc)
			if err := cc.wc.WriteUint8(opcode.StopWaiting); err != nil {
				fmt.Printf("daemon: write STOP_WAITING: %v\n", err)
				continue
			}
			if err := cc.wc.Flush(); err != nil {
				fmt.Printf("daemon: flush STOP_WAITING: %v\n", err)
			}
		} else {
			d.waitCountBySk[cc] = n
		}
	}
}
