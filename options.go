package client

import "time"

// Options configures a Client, mirroring §6.4 directly. There is no
// config-file or env layer here, matching the teacher: callers build a
// literal and pass it to a constructor the way
// internal.ConnectionTarget is built and passed to NewBaseTCPClient.
type Options struct {
	// MasterAddr is the daemon's host for clients, and the bind
	// address when IsServer is set.
	MasterAddr string
	// MasterPort is the daemon's TCP port.
	MasterPort int
	// IsServer spawns a daemon in this process, listening on
	// MasterAddr:MasterPort, before the client connects to it.
	IsServer bool
	// NumWorkers is the expected rendezvous count; it drives
	// WaitForWorkers.
	NumWorkers int
	// Timeout is the default per-operation wait timeout. Zero means no
	// timeout (block indefinitely, as plain TCP reads do).
	Timeout time.Duration
	// WaitWorkers blocks New until the rendezvous barrier in §4.5
	// completes.
	WaitWorkers bool
}

// keyPrefix is prepended to every key the client sends. It is the "/"
// constant named in §4.5. The rendezvous counter goes through the same
// prefixing, so it is stored as keyPrefix+"init/", the same key a
// caller reaches with Get("init/"); the prefix does not keep the two
// apart.
const keyPrefix = "/"

const rendezvousKey = "init/"
