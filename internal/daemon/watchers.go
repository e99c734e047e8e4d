package daemon

import (
	"fmt"

	"github.com/rstutsman/rendezvous-store/internal/opcode"
)

// addWatcher implements WATCH_KEY: the requesting socket is appended to
// key's watcher list. Watchers persist until disconnect; notification
// never consumes the registration.
func (d *Daemon) addWatcher(cc *clientConn, key string) {
	set, ok := d.watchersByKey[key]
	if !ok {
		set = make(map[*clientConn]struct{})
		d.watchersByKey[key] = set
	}
	set[cc] = struct{}{}
	cc.watching[key] = struct{}{}
}

// notifyWatchers writes a notification frame (§4.4, §6.1) to every
// socket watching key. Writes are fire-and-forget from the mutator's
// perspective: a slow watcher can stall this call, which is the
// documented, accepted trade-off for a single-threaded daemon (§5).
func (d *Daemon) notifyWatchers(key string, oldValue, newValue []byte, tag byte) {
	set := d.watchersByKey[key]
	if len(set) == 0 {
		return
	}
	for cc := range set {
		if err := writeNotification(cc, key, oldValue, newValue, tag); err != nil {
			fmt.Printf("daemon: notify watcher for key %q: %v\n", key, err)
		}
	}
}

func writeNotification(cc *clientConn, key string, oldValue, newValue []byte, tag byte) error {
	if err := cc.wc.WriteUint8(opcode.FrameNotif); err != nil {
		return err
	}
	if err := cc.wc.WriteBytes([]byte(key)); err != nil {
		return err
	}
	if err := cc.wc.WriteBytes(oldValue); err != nil {
		return err
	}
	if err := cc.wc.WriteBytes(newValue); err != nil {
		return err
	}
	if err := cc.wc.WriteUint8(tag); err != nil {
		return err
	}
	return cc.wc.Flush()
}
