// Command rendezvousd runs the rendezvous daemon (C3) standalone,
// outside of any worker process, for jobs that prefer a dedicated
// coordinator rather than hosting the daemon inside worker 0 (compare
// Options.IsServer). Flag handling follows
// Dashree-cs6450-labs/kvs/server/main.go's flag.String/flag.Int style.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rstutsman/rendezvous-store/internal/daemon"
)

func main() {
	host := flag.String("host", "0.0.0.0", "Address to bind the rendezvous daemon on")
	port := flag.Int("port", 29500, "Port to bind the rendezvous daemon on")
	flag.Parse()

	addr := fmt.Sprintf("%s:%d", *host, *port)
	d, err := daemon.Listen(addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rendezvousd: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("rendezvousd listening on %s\n", d.Addr())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("rendezvousd: shutting down")
		d.Stop()
	}()

	d.Run()
}
