// Command demo exercises a running rendezvous daemon the way the
// teacher's own cli.go exercises a memcached instance: a handful of
// goroutines that each join the rendezvous barrier and Add to a shared
// counter concurrently, then one Get of the counter, printing what
// comes back.
package main

import (
	"flag"
	"fmt"
	"sync"
	"time"

	client "github.com/rstutsman/rendezvous-store"
)

func main() {
	host := flag.String("host", "127.0.0.1", "Rendezvous daemon host")
	port := flag.Int("port", 29500, "Rendezvous daemon port")
	workers := flag.Int("workers", 3, "Number of simulated workers")
	flag.Parse()

	var wg sync.WaitGroup
	results := make([]int64, *workers)

	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := client.New(client.Options{
				MasterAddr:  *host,
				MasterPort:  *port,
				Timeout:     5 * time.Second,
				NumWorkers:  *workers,
				WaitWorkers: true,
			})
			if err != nil {
				fmt.Printf("worker %d: connect error: %v\n", i, err)
				return
			}
			defer c.Close()

			n, err := c.Add("c", 1)
			if err != nil {
				fmt.Printf("worker %d: add error: %v\n", i, err)
				return
			}
			results[i] = n
		}(i)
	}
	wg.Wait()

	fmt.Printf("add results: %v\n", results)

	c, err := client.New(client.Options{MasterAddr: *host, MasterPort: *port, Timeout: 5 * time.Second})
	if err != nil {
		fmt.Printf("connect error: %v\n", err)
		return
	}
	defer c.Close()

	v, err := c.Get("c")
	if err != nil {
		fmt.Printf("get error: %v\n", err)
		return
	}
	fmt.Printf("final value of c: %s\n", v)
}
